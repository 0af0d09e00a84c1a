package http

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"rsc.io/qr"

	"auxparty/internal/core"
	"auxparty/internal/policy"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	events, err := s.store.ListEventsVisibleTo(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

type eventRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Theme       string `json:"theme"`
	IsPublic    bool   `json:"isPublic"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if !policy.CanCreateEvent(user) {
		s.writeError(w, fmt.Errorf("%w: only super users create events", core.ErrForbidden))
		return
	}

	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, fmt.Errorf("%w: event name is required", core.ErrValidation))
		return
	}

	event := &core.Event{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Theme:       req.Theme,
		IsPublic:    req.IsPublic,
		CreatorID:   user.ID,
	}
	if err := s.store.CreateEvent(r.Context(), event); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, event)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.store.FindEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !policy.CanView(userFrom(r.Context()), event) {
		s.writeError(w, core.ErrForbidden)
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.store.FindEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !policy.CanUpdate(userFrom(r.Context()), event) {
		s.writeError(w, core.ErrForbidden)
		return
	}

	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Name != "" {
		event.Name = req.Name
	}
	event.Description = req.Description
	event.Theme = req.Theme
	event.IsPublic = req.IsPublic

	if err := s.store.UpdateEvent(r.Context(), event); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}

// handleJoinEvent adds the caller as a participant, pulls their liked songs
// into the listening history, and regenerates the playlist so it reflects the
// new member's taste. History sync and regeneration are best effort; the join
// itself never fails because of them.
func (s *Server) handleJoinEvent(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	event, err := s.store.FindEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !policy.CanJoin(user, event) {
		s.writeError(w, fmt.Errorf("%w: event is not open for joining", core.ErrForbidden))
		return
	}

	// The creator is a member by role, never a participant row.
	if event.CreatorID != user.ID {
		if err := s.store.AddParticipant(r.Context(), event.ID, user.ID); err != nil {
			s.writeError(w, err)
			return
		}
	}

	if inserted, err := s.syncListeningHistory(r, user); err != nil {
		s.logger.Warn("history sync on join failed",
			zap.String("user", user.ID),
			zap.Error(err))
	} else {
		s.logger.Debug("history synced on join",
			zap.String("user", user.ID),
			zap.Int("inserted", inserted))
	}

	if regenerated, err := s.engine.Regenerate(r.Context(), event.ID); err != nil {
		s.metrics.ErrorsTotal.WithLabelValues("playlist").Inc()
		s.logger.Warn("regeneration on join failed",
			zap.String("event", event.ID),
			zap.Error(err))
	} else {
		s.metrics.RegenerationsTotal.Inc()
		s.writeJSON(w, http.StatusOK, regenerated)
		return
	}

	event, err = s.store.FindEvent(r.Context(), event.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}

type shareResponse struct {
	URL    string `json:"url"`
	QRCode string `json:"qrCode"`
}

// handleShareEvent returns the public join link and a QR code for it as a
// PNG data URL.
func (s *Server) handleShareEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.store.FindEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !policy.CanShare(event) {
		s.writeError(w, fmt.Errorf("%w: private events cannot be shared", core.ErrForbidden))
		return
	}

	url := s.config.App.FrontendURL + "/events/" + event.ID
	code, err := qr.Encode(url, qr.M)
	if err != nil {
		s.writeError(w, fmt.Errorf("encode share QR: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, shareResponse{
		URL:    url,
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(code.PNG()),
	})
}

func (s *Server) handleEventPlaylist(w http.ResponseWriter, r *http.Request) {
	event, err := s.store.FindEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !policy.CanView(userFrom(r.Context()), event) {
		s.writeError(w, core.ErrForbidden)
		return
	}
	playlist := event.Playlist
	if playlist == nil {
		playlist = []core.Track{}
	}
	s.writeJSON(w, http.StatusOK, playlist)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	event, err := s.store.FindEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !policy.CanRegenerate(userFrom(r.Context()), event) {
		s.writeError(w, fmt.Errorf("%w: only the creator regenerates the playlist", core.ErrForbidden))
		return
	}

	event, err = s.engine.Regenerate(r.Context(), event.ID)
	if err != nil {
		s.metrics.ErrorsTotal.WithLabelValues("playlist").Inc()
		s.writeError(w, err)
		return
	}
	s.metrics.RegenerationsTotal.Inc()
	s.writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleGenerateNext(w http.ResponseWriter, r *http.Request) {
	event, err := s.store.FindEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !policy.CanRegenerate(userFrom(r.Context()), event) {
		s.writeError(w, fmt.Errorf("%w: only the creator extends the playlist", core.ErrForbidden))
		return
	}

	event, err = s.engine.GenerateNext(r.Context(), event.ID)
	if err != nil {
		s.metrics.ErrorsTotal.WithLabelValues("playlist").Inc()
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}
