package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"auxparty/internal/auth"
	"auxparty/internal/core"
	"auxparty/internal/flood"
	"auxparty/internal/match"
	"auxparty/internal/playlist"
	"auxparty/internal/store"
)

// fakeCatalog serves canned data for every provider.
type fakeCatalog struct {
	liked   []core.Track
	catalog []core.Track
}

func (f *fakeCatalog) FetchLikedSongs(context.Context, string) ([]core.Track, error) {
	return append([]core.Track(nil), f.liked...), nil
}

func (f *fakeCatalog) FetchPlaylists(context.Context, string) ([]core.PlaylistSummary, error) {
	return []core.PlaylistSummary{{ID: "pl1", Name: "Mix", TrackCount: len(f.catalog)}}, nil
}

func (f *fakeCatalog) FetchPlaylistTracks(context.Context, string, string) ([]core.Track, error) {
	return append([]core.Track(nil), f.catalog...), nil
}

func (f *fakeCatalog) SearchTrack(_ context.Context, _ string, query string, _ int) ([]core.Track, error) {
	q := strings.ToLower(query)
	var out []core.Track
	for _, t := range f.catalog {
		if strings.Contains(q, strings.ToLower(t.Title)) {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeResolver struct{ catalog core.CatalogClient }

func (f fakeResolver) For(core.Provider) (core.CatalogClient, error) { return f.catalog, nil }

type staticTokens struct{ token string }

func (s staticTokens) ValidAccessToken(context.Context, string, core.Provider) (string, error) {
	return s.token, nil
}

type fakeOracle struct{ tracks []core.Track }

func (f *fakeOracle) GeneratePlaylist(context.Context, core.OracleRequest) ([]core.Track, error) {
	return append([]core.Track(nil), f.tracks...), nil
}

type testEnv struct {
	server *Server
	store  *store.Store
	issuer *auth.Issuer
}

func suggestions() []core.Track {
	var tracks []core.Track
	for i := 0; i < 10; i++ {
		tracks = append(tracks, core.Track{
			Title:  fmt.Sprintf("Suggestion %c", 'A'+i),
			Artist: fmt.Sprintf("Band %c", 'A'+i),
		})
	}
	return tracks
}

func newTestEnv(t *testing.T, mutate func(cfg *core.Config)) *testEnv {
	t.Helper()

	cfg := core.DefaultConfig()
	cfg.Auth.JWTSecret = "test-secret"
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.New(core.StoreConfig{Path: filepath.Join(t.TempDir(), "api.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	oracleTracks := suggestions()
	var catalogTracks []core.Track
	for i, s := range oracleTracks {
		catalogTracks = append(catalogTracks, core.Track{
			Title:           s.Title,
			Artist:          s.Artist,
			ProviderTrackID: fmt.Sprintf("cat-%d", i),
			Provider:        core.ProviderSpotify,
			ResolvedURI:     fmt.Sprintf("spotify:track:cat-%d", i),
		})
	}
	catalog := &fakeCatalog{
		liked: []core.Track{
			{Title: "Liked One", Artist: "Artist", Provider: core.ProviderSpotify, ProviderTrackID: "l1"},
			{Title: "Liked Two", Artist: "Artist", Provider: core.ProviderSpotify, ProviderTrackID: "l2"},
		},
		catalog: catalogTracks,
	}

	issuer := auth.NewIssuer(cfg.Auth)
	engine := playlist.NewEngine(cfg, st, &fakeOracle{tracks: oracleTracks},
		match.NewMatcher(zap.NewNop()), fakeResolver{catalog}, zap.NewNop())
	gate := flood.New(cfg.App.FloodLimitPerMinute)
	t.Cleanup(gate.Stop)

	server := NewServer(cfg, st, issuer, engine, fakeResolver{catalog},
		staticTokens{token: "playback-at"}, gate, zap.NewNop())
	return &testEnv{server: server, store: st, issuer: issuer}
}

func (e *testEnv) createUser(t *testing.T, id string, super bool) (*core.User, string) {
	t.Helper()
	user := &core.User{
		ID:             id,
		Name:           "user " + id,
		IsSuperUser:    super,
		MusicProvider:  core.ProviderSpotify,
		ProviderUserID: "sp-" + id,
		RefreshToken:   "rt",
	}
	if err := e.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token, err := e.issuer.Issue(id)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return user, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestLoginCreatesAndReusesUser(t *testing.T) {
	env := newTestEnv(t, nil)

	body := map[string]string{
		"provider":       "spotify",
		"providerUserId": "sp-abc",
		"name":           "Alice",
		"accessToken":    "at",
		"refreshToken":   "rt",
	}
	rec := env.do(t, http.MethodPost, "/api/auth/login", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	first := decode[loginResponse](t, rec)
	if first.Token == "" || first.User == nil {
		t.Fatalf("incomplete login response: %+v", first)
	}

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", body)
	second := decode[loginResponse](t, rec)
	if second.User.ID != first.User.ID {
		t.Errorf("second login created a new user: %s vs %s", second.User.ID, first.User.ID)
	}
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"provider":       "tidal",
		"providerUserId": "x",
		"refreshToken":   "rt",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown provider status = %d, want 400", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodGet, "/api/users/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/users/me", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}

	_, token := env.createUser(t, "u1", false)
	rec := env.do(t, http.MethodGet, "/api/users/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", rec.Code)
	}
	profile := decode[profileResponse](t, rec)
	if profile.User == nil || profile.User.ID != "u1" {
		t.Errorf("me = %+v", profile)
	}
	if profile.Events == nil || profile.History == nil {
		t.Errorf("profile missing events or history: %+v", profile)
	}
}

func TestCreateEventRequiresSuperUser(t *testing.T) {
	env := newTestEnv(t, nil)
	_, regular := env.createUser(t, "regular", false)
	_, super := env.createUser(t, "super", true)

	body := map[string]any{"name": "Party", "theme": "funk", "isPublic": true}

	if rec := env.do(t, http.MethodPost, "/api/events", regular, body); rec.Code != http.StatusForbidden {
		t.Errorf("regular user create status = %d, want 403", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/events", super, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("super user create status = %d: %s", rec.Code, rec.Body.String())
	}
	event := decode[core.Event](t, rec)
	if event.CreatorID != "super" || !event.IsPublic {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestEventVisibility(t *testing.T) {
	env := newTestEnv(t, nil)
	_, super := env.createUser(t, "super", true)
	env.createUser(t, "stranger", false)
	_, stranger := env.createUser(t, "stranger2", false)

	pub := decode[core.Event](t, env.do(t, http.MethodPost, "/api/events", super,
		map[string]any{"name": "Open", "isPublic": true}))
	priv := decode[core.Event](t, env.do(t, http.MethodPost, "/api/events", super,
		map[string]any{"name": "Closed", "isPublic": false}))

	if rec := env.do(t, http.MethodGet, "/api/events/"+pub.ID, "", nil); rec.Code != http.StatusOK {
		t.Errorf("anonymous view of public event = %d, want 200", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/events/"+priv.ID, "", nil); rec.Code != http.StatusForbidden {
		t.Errorf("anonymous view of private event = %d, want 403", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/events/"+priv.ID, stranger, nil); rec.Code != http.StatusForbidden {
		t.Errorf("stranger view of private event = %d, want 403", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/events/"+priv.ID, super, nil); rec.Code != http.StatusOK {
		t.Errorf("creator view of private event = %d, want 200", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/events/missing", super, nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing event = %d, want 404", rec.Code)
	}
}

func TestJoinEventSyncsHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	_, super := env.createUser(t, "super", true)
	_, guest := env.createUser(t, "guest", false)

	pub := decode[core.Event](t, env.do(t, http.MethodPost, "/api/events", super,
		map[string]any{"name": "Open", "isPublic": true}))
	priv := decode[core.Event](t, env.do(t, http.MethodPost, "/api/events", super,
		map[string]any{"name": "Closed", "isPublic": false}))

	rec := env.do(t, http.MethodPost, "/api/events/"+pub.ID+"/join", guest, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d: %s", rec.Code, rec.Body.String())
	}
	joined := decode[core.Event](t, rec)
	if len(joined.ParticipantIDs) != 1 || joined.ParticipantIDs[0] != "guest" {
		t.Errorf("participants = %v", joined.ParticipantIDs)
	}
	// Joining regenerates the playlist; empty plus the fixed drop of two
	// leaves eight tracks.
	if len(joined.Playlist) != 8 {
		t.Errorf("playlist length after join = %d, want 8", len(joined.Playlist))
	}

	history, err := env.store.ListeningHistory(context.Background(), "guest")
	if err != nil {
		t.Fatalf("ListeningHistory: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2 liked songs synced", len(history))
	}

	if rec := env.do(t, http.MethodPost, "/api/events/"+priv.ID+"/join", guest, nil); rec.Code != http.StatusForbidden {
		t.Errorf("join private event = %d, want 403", rec.Code)
	}

	// The creator joining their own event must not become a participant.
	rec = env.do(t, http.MethodPost, "/api/events/"+pub.ID+"/join", super, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("creator join status = %d", rec.Code)
	}
	self := decode[core.Event](t, rec)
	for _, id := range self.ParticipantIDs {
		if id == "super" {
			t.Error("creator listed as participant")
		}
	}
}

func TestShareEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	_, super := env.createUser(t, "super", true)

	pub := decode[core.Event](t, env.do(t, http.MethodPost, "/api/events", super,
		map[string]any{"name": "Open", "isPublic": true}))
	priv := decode[core.Event](t, env.do(t, http.MethodPost, "/api/events", super,
		map[string]any{"name": "Closed", "isPublic": false}))

	rec := env.do(t, http.MethodGet, "/api/events/"+pub.ID+"/share", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("share status = %d: %s", rec.Code, rec.Body.String())
	}
	share := decode[shareResponse](t, rec)
	if !strings.HasSuffix(share.URL, "/events/"+pub.ID) {
		t.Errorf("share URL = %q", share.URL)
	}
	if !strings.HasPrefix(share.QRCode, "data:image/png;base64,") {
		t.Errorf("QR code is not a PNG data URL: %.40s", share.QRCode)
	}

	if rec := env.do(t, http.MethodGet, "/api/events/"+priv.ID+"/share", super, nil); rec.Code != http.StatusForbidden {
		t.Errorf("share private event = %d, want 403", rec.Code)
	}
}

func TestRegenerateEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	_, super := env.createUser(t, "super", true)
	_, guest := env.createUser(t, "guest", false)

	event := decode[core.Event](t, env.do(t, http.MethodPost, "/api/events", super,
		map[string]any{"name": "Open", "theme": "disco", "isPublic": true}))

	if rec := env.do(t, http.MethodPost, "/api/events/"+event.ID+"/regenerate", guest, nil); rec.Code != http.StatusForbidden {
		t.Errorf("non-creator regenerate = %d, want 403", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/events/"+event.ID+"/regenerate", super, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("regenerate status = %d: %s", rec.Code, rec.Body.String())
	}
	regenerated := decode[core.Event](t, rec)
	// Empty playlist plus the fixed drop of two leaves eight tracks.
	if len(regenerated.Playlist) != 8 {
		t.Errorf("playlist length = %d, want 8", len(regenerated.Playlist))
	}

	rec = env.do(t, http.MethodPost, "/api/events/"+event.ID+"/next", super, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("next status = %d: %s", rec.Code, rec.Body.String())
	}
	extended := decode[core.Event](t, rec)
	if len(extended.Playlist) != 9 {
		t.Errorf("playlist length after next = %d, want 9", len(extended.Playlist))
	}
}

func TestRegenerateFloodLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *core.Config) {
		cfg.App.FloodLimitPerMinute = 1
	})
	_, super := env.createUser(t, "super", true)

	event := decode[core.Event](t, env.do(t, http.MethodPost, "/api/events", super,
		map[string]any{"name": "Open", "isPublic": true}))

	if rec := env.do(t, http.MethodPost, "/api/events/"+event.ID+"/regenerate", super, nil); rec.Code != http.StatusOK {
		t.Fatalf("first regenerate = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/events/"+event.ID+"/regenerate", super, nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second regenerate = %d, want 429", rec.Code)
	}
}

func TestMusicEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	_, token := env.createUser(t, "u1", false)

	rec := env.do(t, http.MethodGet, "/api/music/liked", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("liked status = %d", rec.Code)
	}
	liked := decode[likedSongsResponse](t, rec)
	if len(liked.Tracks) != 2 || liked.Inserted != 2 {
		t.Errorf("liked = %+v", liked)
	}

	// Second fetch inserts nothing new.
	liked = decode[likedSongsResponse](t, env.do(t, http.MethodGet, "/api/music/liked", token, nil))
	if liked.Inserted != 0 {
		t.Errorf("repeat sync inserted = %d, want 0", liked.Inserted)
	}

	if rec := env.do(t, http.MethodGet, "/api/music/search", token, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/music/search?q=x&limit=0", token, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("search with bad limit = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/music/search?q=suggestion", token, nil); rec.Code != http.StatusOK {
		t.Errorf("search = %d, want 200", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/music/playlists", token, nil); rec.Code != http.StatusOK {
		t.Errorf("playlists = %d, want 200", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/music/playlists/pl1/tracks", token, nil); rec.Code != http.StatusOK {
		t.Errorf("playlist tracks = %d, want 200", rec.Code)
	}
}

func TestResolveURI(t *testing.T) {
	env := newTestEnv(t, nil)
	_, token := env.createUser(t, "u1", false)

	rec := env.do(t, http.MethodPost, "/api/music/resolve-uri", token,
		map[string]string{"title": "Suggestion A", "artist": "Band A"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}
	resolved := decode[resolveURIResponse](t, rec)
	if resolved.URI != "spotify:track:cat-0" {
		t.Errorf("resolved URI = %q", resolved.URI)
	}

	// No acceptable catalog version resolves to an empty URI, not an error.
	rec = env.do(t, http.MethodPost, "/api/music/resolve-uri", token,
		map[string]string{"title": "Zebra Quantum", "artist": "Nobody"})
	if rec.Code != http.StatusOK {
		t.Fatalf("no-match status = %d", rec.Code)
	}
	if resolved := decode[resolveURIResponse](t, rec); resolved.URI != "" {
		t.Errorf("no-match URI = %q, want empty", resolved.URI)
	}

	if rec := env.do(t, http.MethodPost, "/api/music/resolve-uri", token,
		map[string]string{"title": "Only Title"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing artist status = %d, want 400", rec.Code)
	}
}

func TestPlaybackToken(t *testing.T) {
	env := newTestEnv(t, nil)
	_, token := env.createUser(t, "u1", false)

	rec := env.do(t, http.MethodGet, "/api/music/playback-token", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("playback token status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[playbackTokenResponse](t, rec)
	if resp.AccessToken != "playback-at" || resp.Provider != core.ProviderSpotify {
		t.Errorf("playback token = %+v", resp)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if rec := env.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
