package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auxparty/internal/core"
)

func (s *Store) FindEvent(ctx context.Context, id string) (*core.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, theme, is_public, creator_id, created_at
		FROM events WHERE id = ?`, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("find event: %w", err)
	}

	if event.ParticipantIDs, err = s.eventParticipants(ctx, id); err != nil {
		return nil, err
	}
	if event.Playlist, err = s.eventPlaylist(ctx, id); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Store) ListEventsVisibleTo(ctx context.Context, userID string) ([]core.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, theme, is_public, creator_id, created_at
		FROM events
		WHERE is_public = 1
		   OR creator_id = ?
		   OR id IN (SELECT event_id FROM event_participants WHERE user_id = ?)
		ORDER BY created_at DESC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		if event.ParticipantIDs, err = s.eventParticipants(ctx, event.ID); err != nil {
			return nil, err
		}
		if event.Playlist, err = s.eventPlaylist(ctx, event.ID); err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

func (s *Store) CreateEvent(ctx context.Context, event *core.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (id, name, description, theme, is_public, creator_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			event.ID, event.Name, event.Description, event.Theme,
			boolToInt(event.IsPublic), event.CreatorID, event.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		for _, uid := range event.ParticipantIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO event_participants (event_id, user_id) VALUES (?, ?)`,
				event.ID, uid); err != nil {
				return fmt.Errorf("create event participants: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) UpdateEvent(ctx context.Context, event *core.Event) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET name = ?, description = ?, theme = ?, is_public = ?
		WHERE id = ?`,
		event.Name, event.Description, event.Theme, boolToInt(event.IsPublic), event.ID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", event.ID, core.ErrNotFound)
	}
	return nil
}

// UpdateEventPlaylist applies ops in a single transaction. Callers replace the
// playlist atomically with {DeleteAll: true, Append: tracks}; a reader never
// observes the emptied intermediate state.
func (s *Store) UpdateEventPlaylist(ctx context.Context, eventID string, ops core.PlaylistOps) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var base int
		if ops.DeleteAll {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM event_playlist WHERE event_id = ?`, eventID); err != nil {
				return fmt.Errorf("clear playlist: %w", err)
			}
		} else {
			row := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(position) + 1, 0) FROM event_playlist WHERE event_id = ?`, eventID)
			if err := row.Scan(&base); err != nil {
				return fmt.Errorf("playlist length: %w", err)
			}
		}

		for i, t := range ops.Append {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO event_playlist
					(event_id, position, title, artist, album, provider_track_id, provider, resolved_uri)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				eventID, base+i, t.Title, t.Artist, t.Album,
				t.ProviderTrackID, string(t.Provider), t.ResolvedURI); err != nil {
				return fmt.Errorf("append playlist track: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) AddParticipant(ctx context.Context, eventID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO event_participants (event_id, user_id) VALUES (?, ?)`,
		eventID, userID)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (s *Store) eventParticipants(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM event_participants WHERE event_id = ? ORDER BY user_id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("event participants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("event participants: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) eventPlaylist(ctx context.Context, eventID string) ([]core.Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, artist, album, provider_track_id, provider, resolved_uri
		FROM event_playlist WHERE event_id = ? ORDER BY position`, eventID)
	if err != nil {
		return nil, fmt.Errorf("event playlist: %w", err)
	}
	defer rows.Close()

	var tracks []core.Track
	for rows.Next() {
		var t core.Track
		var provider string
		if err := rows.Scan(&t.Title, &t.Artist, &t.Album,
			&t.ProviderTrackID, &provider, &t.ResolvedURI); err != nil {
			return nil, fmt.Errorf("event playlist: %w", err)
		}
		t.Provider = core.Provider(provider)
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*core.Event, error) {
	var e core.Event
	var isPublic int
	var createdAt int64
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Theme,
		&isPublic, &e.CreatorID, &createdAt); err != nil {
		return nil, err
	}
	e.IsPublic = isPublic != 0
	e.CreatedAt = time.Unix(createdAt, 0)
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
