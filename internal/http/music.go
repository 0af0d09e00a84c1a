package http

import (
	"fmt"
	"net/http"
	"strconv"

	"auxparty/internal/core"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// syncListeningHistory pulls the user's liked songs from their provider into
// the stored history and returns how many rows were new.
func (s *Server) syncListeningHistory(r *http.Request, user *core.User) (int, error) {
	catalog, err := s.catalogs.For(user.MusicProvider)
	if err != nil {
		return 0, err
	}
	tracks, err := catalog.FetchLikedSongs(r.Context(), user.ID)
	if err != nil {
		return 0, err
	}

	inserted, err := s.store.UpsertListeningHistory(r.Context(), user.ID, tracks)
	if err != nil {
		return 0, err
	}
	s.metrics.HistoryInserts.Add(float64(inserted))
	return inserted, nil
}

type likedSongsResponse struct {
	Tracks   []core.Track `json:"tracks"`
	Inserted int          `json:"inserted"`
}

func (s *Server) handleLikedSongs(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	catalog, err := s.catalogs.For(user.MusicProvider)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tracks, err := catalog.FetchLikedSongs(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	inserted, err := s.store.UpsertListeningHistory(r.Context(), user.ID, tracks)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.HistoryInserts.Add(float64(inserted))

	if tracks == nil {
		tracks = []core.Track{}
	}
	s.writeJSON(w, http.StatusOK, likedSongsResponse{Tracks: tracks, Inserted: inserted})
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	catalog, err := s.catalogs.For(user.MusicProvider)
	if err != nil {
		s.writeError(w, err)
		return
	}
	playlists, err := catalog.FetchPlaylists(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if playlists == nil {
		playlists = []core.PlaylistSummary{}
	}
	s.writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handlePlaylistTracks(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	catalog, err := s.catalogs.For(user.MusicProvider)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tracks, err := catalog.FetchPlaylistTracks(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tracks == nil {
		tracks = []core.Track{}
	}
	s.writeJSON(w, http.StatusOK, tracks)
}

type resolveURIRequest struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

type resolveURIResponse struct {
	URI string `json:"uri"`
}

// handleResolveURI matches a track against the caller's catalog and returns
// its playable URI. An empty URI means no acceptable version exists.
func (s *Server) handleResolveURI(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req resolveURIRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Title == "" || req.Artist == "" {
		s.writeError(w, fmt.Errorf("%w: title and artist are required", core.ErrValidation))
		return
	}

	uri, err := s.engine.ResolveURI(r.Context(), user, core.Track{Title: req.Title, Artist: req.Artist})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resolveURIResponse{URI: uri})
}

type playbackTokenResponse struct {
	Provider    core.Provider `json:"provider"`
	AccessToken string        `json:"accessToken"`
}

// handlePlaybackToken hands the caller a fresh provider access token for the
// playback SDK on their device.
func (s *Server) handlePlaybackToken(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	token, err := s.tokens.ValidAccessToken(r.Context(), user.ID, user.MusicProvider)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, playbackTokenResponse{Provider: user.MusicProvider, AccessToken: token})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, fmt.Errorf("%w: query parameter q is required", core.ErrValidation))
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, fmt.Errorf("%w: limit must be a positive integer", core.ErrValidation))
			return
		}
		if parsed > maxSearchLimit {
			parsed = maxSearchLimit
		}
		limit = parsed
	}

	catalog, err := s.catalogs.For(user.MusicProvider)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tracks, err := catalog.SearchTrack(r.Context(), user.ID, query, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tracks == nil {
		tracks = []core.Track{}
	}
	s.writeJSON(w, http.StatusOK, tracks)
}
