package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"auxparty/internal/core"
)

type loginRequest struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"providerUserId"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	AccessToken    string `json:"accessToken"`
	RefreshToken   string `json:"refreshToken"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  *core.User `json:"user"`
}

// handleLogin exchanges a provider identity plus its OAuth tokens for a
// session token, creating the account on first sight.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	provider, err := core.ParseProvider(req.Provider)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.ProviderUserID == "" || req.RefreshToken == "" {
		s.writeError(w, fmt.Errorf("%w: providerUserId and refreshToken are required", core.ErrValidation))
		return
	}

	user, err := s.store.FindUserByProviderID(r.Context(), provider, req.ProviderUserID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		user = &core.User{
			ID:             uuid.NewString(),
			Email:          req.Email,
			Name:           req.Name,
			MusicProvider:  provider,
			ProviderUserID: req.ProviderUserID,
			AccessToken:    req.AccessToken,
			RefreshToken:   req.RefreshToken,
		}
		if err := s.store.CreateUser(r.Context(), user); err != nil {
			s.writeError(w, err)
			return
		}
	case err != nil:
		s.writeError(w, err)
		return
	default:
		if err := s.store.UpdateUserCredentials(r.Context(), user.ID, req.AccessToken, req.RefreshToken); err != nil {
			s.writeError(w, err)
			return
		}
	}

	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

type profileResponse struct {
	User    *core.User   `json:"user"`
	Events  []core.Event `json:"events"`
	History []core.Track `json:"history"`
}

// handleCurrentUser returns the caller's profile together with the events
// they created or joined and their stored listening history.
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	visible, err := s.store.ListEventsVisibleTo(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	events := []core.Event{}
	for _, ev := range visible {
		if ev.CreatorID == user.ID || ev.HasParticipant(user.ID) {
			events = append(events, ev)
		}
	}

	history, err := s.store.ListeningHistory(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if history == nil {
		history = []core.Track{}
	}

	s.writeJSON(w, http.StatusOK, profileResponse{User: user, Events: events, History: history})
}

type updateProfileRequest struct {
	Name          string `json:"name"`
	MusicProvider string `json:"musicProvider"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req updateProfileRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	provider := user.MusicProvider
	if req.MusicProvider != "" {
		var err error
		if provider, err = core.ParseProvider(req.MusicProvider); err != nil {
			s.writeError(w, err)
			return
		}
	}
	name := req.Name
	if name == "" {
		name = user.Name
	}

	updated, err := s.store.UpdateUserProfile(r.Context(), user.ID, name, provider)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

type setSuperUserRequest struct {
	IsSuperUser bool `json:"isSuperUser"`
}

// handleSetSuperUser toggles the event-creation privilege. Only an existing
// super user may grant or revoke it.
func (s *Server) handleSetSuperUser(w http.ResponseWriter, r *http.Request) {
	caller := userFrom(r.Context())
	if !caller.IsSuperUser {
		s.writeError(w, fmt.Errorf("%w: super user required", core.ErrForbidden))
		return
	}

	var req setSuperUserRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	updated, err := s.store.SetSuperUser(r.Context(), r.PathValue("id"), req.IsSuperUser)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}
