// Package playlist reconciles an event's stored playlist with fresh oracle
// suggestions.
package playlist

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"auxparty/internal/core"
	"auxparty/internal/match"
)

// retainedSlots is how many leading tracks survive a regeneration: the track
// assumed to be playing now and the one queued after it.
const retainedSlots = 2

// CatalogResolver maps a provider tag to its catalog client.
type CatalogResolver interface {
	For(p core.Provider) (core.CatalogClient, error)
}

// keyedMutex serializes work per event ID. Regenerations for different events
// proceed in parallel; two for the same event queue up. Entries are
// refcounted and removed once the last holder releases, so the map only ever
// holds keys with work in flight.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

type Engine struct {
	store    core.Store
	oracle   core.Oracle
	matcher  *match.Matcher
	catalogs CatalogResolver
	logger   *zap.Logger

	// correctedDrop switches the oracle-entry drop from the historical fixed
	// count to the number of slots actually retained. See Regenerate.
	correctedDrop bool

	locks *keyedMutex
}

func NewEngine(cfg *core.Config, store core.Store, oracle core.Oracle, matcher *match.Matcher, catalogs CatalogResolver, logger *zap.Logger) *Engine {
	return &Engine{
		store:         store,
		oracle:        oracle,
		matcher:       matcher,
		catalogs:      catalogs,
		logger:        logger.Named("playlist"),
		correctedDrop: cfg.App.CorrectedDropCount,
		locks:         newKeyedMutex(),
	}
}

// Regenerate rebuilds the event's playlist: the first two stored tracks are
// retained (current and up-next), the rest is replaced with the oracle's
// suggestions, and the result is written back in one atomic swap. Suggestions
// are stored as-is with placeholder provider IDs; catalog resolution happens
// lazily when a player asks for a URI (see ResolveURI).
//
// The oracle list always loses its first two entries, even when fewer than
// two tracks were retained. That means a regeneration on a short or empty
// playlist yields fewer tracks than requested. The correctedDrop flag drops
// only as many entries as slots were retained instead; it is off by default
// to keep the long-observed behavior.
func (e *Engine) Regenerate(ctx context.Context, eventID string) (*core.Event, error) {
	unlock := e.locks.lock(eventID)
	defer unlock()

	event, err := e.store.FindEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	suggestions, err := e.suggest(ctx, event)
	if err != nil {
		return nil, err
	}

	retained := event.Playlist
	if len(retained) > retainedSlots {
		retained = retained[:retainedSlots]
	}

	drop := retainedSlots
	if e.correctedDrop {
		drop = len(retained)
	}
	if drop > len(suggestions) {
		drop = len(suggestions)
	}

	next := make([]core.Track, 0, len(retained)+len(suggestions)-drop)
	next = append(next, retained...)
	next = append(next, suggestions[drop:]...)

	if err := e.store.UpdateEventPlaylist(ctx, eventID, core.PlaylistOps{
		DeleteAll: true,
		Append:    next,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("playlist regenerated",
		zap.String("event", eventID),
		zap.Int("retained", len(retained)),
		zap.Int("total", len(next)))

	event.Playlist = next
	return event, nil
}

// GenerateNext asks the oracle for a fresh batch and appends its first
// suggestion as one new entry.
func (e *Engine) GenerateNext(ctx context.Context, eventID string) (*core.Event, error) {
	unlock := e.locks.lock(eventID)
	defer unlock()

	event, err := e.store.FindEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	suggestions, err := e.suggest(ctx, event)
	if err != nil {
		return nil, err
	}
	if len(suggestions) == 0 {
		return nil, fmt.Errorf("%w: response contains no songs", core.ErrOracle)
	}
	appended := suggestions[:1]

	if err := e.store.UpdateEventPlaylist(ctx, eventID, core.PlaylistOps{
		Append: appended,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("appended next track",
		zap.String("event", eventID),
		zap.String("title", appended[0].Title),
		zap.String("artist", appended[0].Artist))

	event.Playlist = append(event.Playlist, appended[0])
	return event, nil
}

// ResolveURI finds the playable URI for a track in the user's own catalog.
// An empty URI with a nil error means the catalog has no acceptable version.
func (e *Engine) ResolveURI(ctx context.Context, user *core.User, want core.Track) (string, error) {
	catalog, err := e.catalogs.For(user.MusicProvider)
	if err != nil {
		return "", err
	}
	track, err := e.matcher.Resolve(ctx, catalog, user.ID, want)
	if err != nil {
		return "", err
	}
	if track == nil {
		return "", nil
	}
	return track.ResolvedURI, nil
}

// suggest collects every member's listening history and asks the oracle for a
// themed playlist. The creator's history leads; participants follow in stored
// order.
func (e *Engine) suggest(ctx context.Context, event *core.Event) ([]core.Track, error) {
	memberIDs := append([]string{event.CreatorID}, event.ParticipantIDs...)

	var histories [][]core.Track
	for _, id := range memberIDs {
		history, err := e.store.ListeningHistory(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(history) > 0 {
			histories = append(histories, history)
		}
	}

	creator, err := e.store.FindUser(ctx, event.CreatorID)
	if err != nil {
		return nil, err
	}

	return e.oracle.GeneratePlaylist(ctx, core.OracleRequest{
		Theme:           event.Theme,
		Histories:       histories,
		CreatorProvider: creator.MusicProvider,
	})
}

