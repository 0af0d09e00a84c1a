package store

import (
	"context"
	"fmt"

	"auxparty/internal/core"
)

// UpsertListeningHistory appends tracks to the user's history, skipping
// duplicates by normalized title-artist identity. Returns the number of rows
// actually inserted. Insertion order is preserved, so ListeningHistory yields
// oldest-first.
func (s *Store) UpsertListeningHistory(ctx context.Context, userID string, tracks []core.Track) (int, error) {
	inserted := 0
	for _, t := range tracks {
		key := s.historyKey(t)
		guardKey := userID + "|" + key
		if s.guard.seen(guardKey) {
			continue
		}

		res, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO listening_history
				(user_id, dedup_key, title, artist, album, provider_track_id, provider)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, key, t.Title, t.Artist, t.Album,
			t.ProviderTrackID, string(t.Provider))
		if err != nil {
			return inserted, fmt.Errorf("upsert listening history: %w", err)
		}

		s.guard.remember(guardKey)
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

func (s *Store) ListeningHistory(ctx context.Context, userID string) ([]core.Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, artist, album, provider_track_id, provider
		FROM listening_history WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("listening history: %w", err)
	}
	defer rows.Close()

	var tracks []core.Track
	for rows.Next() {
		var t core.Track
		var provider string
		if err := rows.Scan(&t.Title, &t.Artist, &t.Album, &t.ProviderTrackID, &provider); err != nil {
			return nil, fmt.Errorf("listening history: %w", err)
		}
		t.Provider = core.Provider(provider)
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}
