// Package core defines the domain types and component contracts shared across auxparty.
package core

import (
	"context"
	"fmt"
	"time"
)

// Provider identifies an external music catalog/auth system.
type Provider string

const (
	ProviderSpotify Provider = "spotify"
	ProviderApple   Provider = "apple"
	ProviderYouTube Provider = "youtube"
)

// ParseProvider validates a provider string coming from a request body or stored row.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderSpotify, ProviderApple, ProviderYouTube:
		return Provider(s), nil
	default:
		return "", fmt.Errorf("%w: unsupported music provider %q", ErrValidation, s)
	}
}

// Track is a provider-independent song record. Identity for dedup purposes is the
// normalized (title, artist) pair, not ProviderTrackID: the same logical song can
// carry different IDs across providers or within one catalog (remaster vs. original).
type Track struct {
	Title           string   `json:"title"`
	Artist          string   `json:"artist"`
	Album           string   `json:"album,omitempty"`
	ProviderTrackID string   `json:"providerId"`
	Provider        Provider `json:"provider"`
	ResolvedURI     string   `json:"resolvedUri,omitempty"`
}

// PlaylistSummary describes a playlist as listed by a provider, without its tracks.
type PlaylistSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TrackCount  int    `json:"tracks"`
}

// Event is a shared listening session. The creator is a member by role and is
// never listed in ParticipantIDs; access checks must OR in "is creator" wherever
// membership is tested.
type Event struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Theme          string    `json:"theme"`
	IsPublic       bool      `json:"isPublic"`
	CreatorID      string    `json:"creatorId"`
	ParticipantIDs []string  `json:"participantIds"`
	Playlist       []Track   `json:"playlist,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HasParticipant reports whether userID joined the event. The creator is not a
// participant in this sense; see Event.
func (e *Event) HasParticipant(userID string) bool {
	for _, id := range e.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	IsSuperUser    bool      `json:"isSuperUser"`
	MusicProvider  Provider  `json:"musicProvider"`
	ProviderUserID string    `json:"-"`
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MatchCandidate is an ephemeral provider search result scored against a query
// track. Never persisted.
type MatchCandidate struct {
	Track            Track
	TitleSimilarity  float64
	ArtistSimilarity float64
}

// CatalogClient is the capability set every music provider backend implements.
// Implementations take a userID (not a token) and obtain a valid access token
// from the token layer before the pagination loop starts.
type CatalogClient interface {
	FetchLikedSongs(ctx context.Context, userID string) ([]Track, error)
	FetchPlaylists(ctx context.Context, userID string) ([]PlaylistSummary, error)
	FetchPlaylistTracks(ctx context.Context, userID, playlistID string) ([]Track, error)
	// SearchTrack runs a plain catalog search. The query is already normalized
	// and, in exact mode, phrase-quoted by the caller.
	SearchTrack(ctx context.Context, userID, query string, limit int) ([]Track, error)
}

// OracleRequest carries everything the playlist generator needs.
type OracleRequest struct {
	Theme string
	// Histories holds each participant's listening history, per participant,
	// in storage (chronological-append) order.
	Histories       [][]Track
	CreatorProvider Provider
}

// Oracle produces candidate playlists from a theme and listening histories.
// The returned tracks carry placeholder provider IDs; resolution against a live
// catalog happens downstream.
type Oracle interface {
	GeneratePlaylist(ctx context.Context, req OracleRequest) ([]Track, error)
}

// TokenSource hands out currently-valid provider access tokens, refreshing and
// persisting rotated credentials as needed.
type TokenSource interface {
	ValidAccessToken(ctx context.Context, userID string, provider Provider) (string, error)
}

// PlaylistOps describes a playlist mutation applied atomically by the store.
type PlaylistOps struct {
	DeleteAll bool
	Append    []Track
}

// Store is the persistence boundary consumed by the core components.
type Store interface {
	FindEvent(ctx context.Context, id string) (*Event, error)
	ListEventsVisibleTo(ctx context.Context, userID string) ([]Event, error)
	CreateEvent(ctx context.Context, event *Event) error
	UpdateEvent(ctx context.Context, event *Event) error
	UpdateEventPlaylist(ctx context.Context, eventID string, ops PlaylistOps) error
	AddParticipant(ctx context.Context, eventID, userID string) error

	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByProviderID(ctx context.Context, provider Provider, providerUserID string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUserProfile(ctx context.Context, id, name string, provider Provider) (*User, error)
	SetSuperUser(ctx context.Context, id string, super bool) (*User, error)
	UpdateUserCredentials(ctx context.Context, id, accessToken, refreshToken string) error

	UpsertListeningHistory(ctx context.Context, userID string, tracks []Track) (int, error)
	ListeningHistory(ctx context.Context, userID string) ([]Track, error)
}
