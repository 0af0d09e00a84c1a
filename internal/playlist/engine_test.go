package playlist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"auxparty/internal/core"
	"auxparty/internal/match"
)

type fakeStore struct {
	core.Store

	mu        sync.Mutex
	event     *core.Event
	users     map[string]*core.User
	histories map[string][]core.Track

	updateDelay   time.Duration
	activeUpdates atomic.Int32
	overlapped    atomic.Bool
}

func (f *fakeStore) FindEvent(_ context.Context, id string) (*core.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.event == nil || f.event.ID != id {
		return nil, core.ErrNotFound
	}
	copied := *f.event
	copied.Playlist = append([]core.Track(nil), f.event.Playlist...)
	return &copied, nil
}

func (f *fakeStore) FindUser(_ context.Context, id string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) ListeningHistory(_ context.Context, userID string) ([]core.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.histories[userID], nil
}

func (f *fakeStore) UpdateEventPlaylist(_ context.Context, eventID string, ops core.PlaylistOps) error {
	if f.activeUpdates.Add(1) > 1 {
		f.overlapped.Store(true)
	}
	if f.updateDelay > 0 {
		time.Sleep(f.updateDelay)
	}
	f.activeUpdates.Add(-1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if ops.DeleteAll {
		f.event.Playlist = nil
	}
	f.event.Playlist = append(f.event.Playlist, ops.Append...)
	return nil
}

type fakeOracle struct {
	tracks []core.Track
	calls  atomic.Int32
}

func (f *fakeOracle) GeneratePlaylist(context.Context, core.OracleRequest) ([]core.Track, error) {
	f.calls.Add(1)
	return append([]core.Track(nil), f.tracks...), nil
}

// knownCatalog answers a search with the inventory entries whose title
// appears in the query, like a provider ranking relevant hits first.
type knownCatalog struct {
	core.CatalogClient
	tracks []core.Track
}

func (k *knownCatalog) SearchTrack(_ context.Context, _ string, query string, _ int) ([]core.Track, error) {
	q := strings.ToLower(query)
	var out []core.Track
	for _, t := range k.tracks {
		if strings.Contains(q, strings.ToLower(t.Title)) {
			out = append(out, t)
		}
	}
	return out, nil
}

type singleCatalogResolver struct{ catalog core.CatalogClient }

func (s singleCatalogResolver) For(core.Provider) (core.CatalogClient, error) {
	return s.catalog, nil
}

func oracleTracks(n int) []core.Track {
	var tracks []core.Track
	for i := 0; i < n; i++ {
		tracks = append(tracks, core.Track{
			Title:  fmt.Sprintf("Suggestion %c", 'A'+i),
			Artist: fmt.Sprintf("Band %c", 'A'+i),
		})
	}
	return tracks
}

func catalogFor(suggestions []core.Track) *knownCatalog {
	var tracks []core.Track
	for i, s := range suggestions {
		tracks = append(tracks, core.Track{
			Title:           s.Title,
			Artist:          s.Artist,
			ProviderTrackID: fmt.Sprintf("cat-%d", i),
			Provider:        core.ProviderSpotify,
		})
	}
	return &knownCatalog{tracks: tracks}
}

func newTestEngine(store *fakeStore, oracle core.Oracle, catalog core.CatalogClient, corrected bool) *Engine {
	cfg := core.DefaultConfig()
	cfg.App.CorrectedDropCount = corrected
	return NewEngine(cfg, store, oracle, match.NewMatcher(zap.NewNop()),
		singleCatalogResolver{catalog}, zap.NewNop())
}

func eventStore(playlist []core.Track) *fakeStore {
	return &fakeStore{
		event: &core.Event{
			ID:             "e1",
			Theme:          "disco",
			CreatorID:      "creator",
			ParticipantIDs: []string{"guest"},
			Playlist:       playlist,
		},
		users: map[string]*core.User{
			"creator": {ID: "creator", MusicProvider: core.ProviderSpotify},
			"guest":   {ID: "guest", MusicProvider: core.ProviderApple},
		},
		histories: map[string][]core.Track{
			"creator": {{Title: "History A", Artist: "X"}},
		},
	}
}

func TestRegenerateRetainsTwoAndDropsTwo(t *testing.T) {
	existing := []core.Track{
		{Title: "Now Playing", Artist: "P", ProviderTrackID: "cur"},
		{Title: "Up Next", Artist: "Q", ProviderTrackID: "next"},
		{Title: "Stale", Artist: "R", ProviderTrackID: "stale"},
	}
	suggestions := oracleTracks(10)
	store := eventStore(existing)

	engine := newTestEngine(store, &fakeOracle{tracks: suggestions}, catalogFor(suggestions), false)
	event, err := engine.Regenerate(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	if len(event.Playlist) != 10 {
		t.Fatalf("playlist length = %d, want 10", len(event.Playlist))
	}
	if event.Playlist[0].ProviderTrackID != "cur" || event.Playlist[1].ProviderTrackID != "next" {
		t.Errorf("first two slots not retained: %+v", event.Playlist[:2])
	}
	// The first two oracle suggestions never appear; slot 2 holds the third,
	// stored with its placeholder provider ID until a player resolves it.
	if event.Playlist[2].Title != "Suggestion C" {
		t.Errorf("slot 2 = %q, want Suggestion C", event.Playlist[2].Title)
	}
	if event.Playlist[2].ProviderTrackID != "" {
		t.Errorf("suggestion stored with resolved ID %q, want placeholder", event.Playlist[2].ProviderTrackID)
	}
	for _, track := range event.Playlist[2:] {
		if track.Title == "Stale" {
			t.Error("stale track survived regeneration")
		}
	}
}

func TestRegenerateEmptyPlaylistStillDropsTwo(t *testing.T) {
	suggestions := oracleTracks(10)
	store := eventStore(nil)

	engine := newTestEngine(store, &fakeOracle{tracks: suggestions}, catalogFor(suggestions), false)
	event, err := engine.Regenerate(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	// Nothing was retained, yet two suggestions are still discarded.
	if len(event.Playlist) != 8 {
		t.Errorf("playlist length = %d, want 8", len(event.Playlist))
	}
	if len(event.Playlist) > 0 && event.Playlist[0].Title != "Suggestion C" {
		t.Errorf("first track = %q, want Suggestion C", event.Playlist[0].Title)
	}
}

func TestRegenerateCorrectedDropOnEmptyPlaylist(t *testing.T) {
	suggestions := oracleTracks(10)
	store := eventStore(nil)

	engine := newTestEngine(store, &fakeOracle{tracks: suggestions}, catalogFor(suggestions), true)
	event, err := engine.Regenerate(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if len(event.Playlist) != 10 {
		t.Errorf("playlist length = %d, want 10 with corrected drop", len(event.Playlist))
	}
}

func TestRegenerateKeepsSuggestionsCatalogCannotResolve(t *testing.T) {
	existing := []core.Track{
		{Title: "Now Playing", Artist: "P", ProviderTrackID: "cur"},
		{Title: "Up Next", Artist: "Q", ProviderTrackID: "next"},
		{Title: "Stale One", Artist: "R", ProviderTrackID: "s1"},
		{Title: "Stale Two", Artist: "S", ProviderTrackID: "s2"},
	}
	suggestions := oracleTracks(10)
	// The catalog knows only four of the ten suggestions. That must not
	// matter: suggestions go into the playlist as-is and a track that later
	// fails to resolve is unplayable, not removed.
	catalog := catalogFor(suggestions[:4])
	store := eventStore(existing)

	engine := newTestEngine(store, &fakeOracle{tracks: suggestions}, catalog, false)
	event, err := engine.Regenerate(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if len(event.Playlist) != 10 {
		t.Errorf("playlist length = %d, want 10 regardless of catalog coverage", len(event.Playlist))
	}
}

func TestGenerateNextAppendsFirstSuggestion(t *testing.T) {
	existing := []core.Track{{Title: "Now Playing", Artist: "P", ProviderTrackID: "cur"}}
	suggestions := oracleTracks(10)
	store := eventStore(existing)

	// An empty catalog must not stop the append: the oracle's first pick goes
	// in unconditionally.
	engine := newTestEngine(store, &fakeOracle{tracks: suggestions}, catalogFor(nil), false)
	event, err := engine.GenerateNext(context.Background(), "e1")
	if err != nil {
		t.Fatalf("GenerateNext: %v", err)
	}
	if len(event.Playlist) != 2 {
		t.Fatalf("playlist length = %d, want 2", len(event.Playlist))
	}
	if event.Playlist[1].Title != "Suggestion A" {
		t.Errorf("appended %q, want Suggestion A", event.Playlist[1].Title)
	}
	if event.Playlist[0].ProviderTrackID != "cur" {
		t.Errorf("existing playlist disturbed: %+v", event.Playlist)
	}
}

func TestRegenerateSerializesPerEvent(t *testing.T) {
	suggestions := oracleTracks(10)
	store := eventStore(nil)
	store.updateDelay = 20 * time.Millisecond

	engine := newTestEngine(store, &fakeOracle{tracks: suggestions}, catalogFor(suggestions), false)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Regenerate(context.Background(), "e1"); err != nil {
				t.Errorf("Regenerate: %v", err)
			}
		}()
	}
	wg.Wait()

	if store.overlapped.Load() {
		t.Error("concurrent regenerations overlapped on the same event")
	}
	engine.locks.mu.Lock()
	remaining := len(engine.locks.locks)
	engine.locks.mu.Unlock()
	if remaining != 0 {
		t.Errorf("lock map holds %d entries after all work finished, want 0", remaining)
	}
}

func TestKeyedMutexReleasesIdleEntries(t *testing.T) {
	km := newKeyedMutex()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, key := range []string{"a", "b"} {
				unlock := km.lock(key)
				time.Sleep(time.Millisecond)
				unlock()
			}
		}()
	}
	wg.Wait()

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.locks) != 0 {
		t.Errorf("lock map holds %d entries, want 0 once uncontended", len(km.locks))
	}
}
