// Package store implements the persistence boundary on SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"auxparty/internal/core"
	"auxparty/pkg/fuzzy"
)

type Store struct {
	db     *sql.DB
	logger *zap.Logger
	norm   *fuzzy.Normalizer
	guard  *historyGuard
}

var _ core.Store = (*Store)(nil)

func New(cfg core.StoreConfig, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.Named("store"),
		norm:   fuzzy.NewNormalizer(),
		guard:  newHistoryGuard(),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id               TEXT PRIMARY KEY,
	email            TEXT NOT NULL DEFAULT '',
	name             TEXT NOT NULL DEFAULT '',
	is_super_user    INTEGER NOT NULL DEFAULT 0,
	music_provider   TEXT NOT NULL,
	provider_user_id TEXT NOT NULL,
	access_token     TEXT NOT NULL DEFAULT '',
	refresh_token    TEXT NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL,
	UNIQUE (music_provider, provider_user_id)
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	theme       TEXT NOT NULL DEFAULT '',
	is_public   INTEGER NOT NULL DEFAULT 0,
	creator_id  TEXT NOT NULL REFERENCES users(id),
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS event_participants (
	event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	user_id  TEXT NOT NULL REFERENCES users(id),
	PRIMARY KEY (event_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_playlist (
	event_id          TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	position          INTEGER NOT NULL,
	title             TEXT NOT NULL,
	artist            TEXT NOT NULL,
	album             TEXT NOT NULL DEFAULT '',
	provider_track_id TEXT NOT NULL DEFAULT '',
	provider          TEXT NOT NULL,
	resolved_uri      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (event_id, position)
);

CREATE TABLE IF NOT EXISTS listening_history (
	user_id           TEXT NOT NULL REFERENCES users(id),
	dedup_key         TEXT NOT NULL,
	title             TEXT NOT NULL,
	artist            TEXT NOT NULL,
	album             TEXT NOT NULL DEFAULT '',
	provider_track_id TEXT NOT NULL DEFAULT '',
	provider          TEXT NOT NULL,
	PRIMARY KEY (user_id, dedup_key)
);
`
	_, err := s.db.Exec(schema)
	return err
}

// historyKey is the dedup identity of a track: the normalized title-artist
// pair. Provider IDs deliberately stay out of it, the same song re-released
// under a new catalog ID must not duplicate.
func (s *Store) historyKey(t core.Track) string {
	return s.norm.Normalize(t.Title) + "-" + s.norm.Normalize(t.Artist)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
