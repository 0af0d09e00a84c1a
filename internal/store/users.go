package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auxparty/internal/core"
)

func (s *Store) FindUser(ctx context.Context, id string) (*core.User, error) {
	return s.findUserWhere(ctx, "id = ?", id)
}

func (s *Store) FindUserByProviderID(ctx context.Context, provider core.Provider, providerUserID string) (*core.User, error) {
	return s.findUserWhere(ctx, "music_provider = ? AND provider_user_id = ?",
		string(provider), providerUserID)
}

func (s *Store) findUserWhere(ctx context.Context, where string, args ...any) (*core.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, is_super_user, music_provider, provider_user_id,
		       access_token, refresh_token, created_at
		FROM users WHERE `+where, args...)

	var u core.User
	var isSuper int
	var provider string
	var createdAt int64
	err := row.Scan(&u.ID, &u.Email, &u.Name, &isSuper, &provider,
		&u.ProviderUserID, &u.AccessToken, &u.RefreshToken, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", core.ErrNotFound)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.IsSuperUser = isSuper != 0
	u.MusicProvider = core.Provider(provider)
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user *core.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users
			(id, email, name, is_super_user, music_provider, provider_user_id,
			 access_token, refresh_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, boolToInt(user.IsSuperUser),
		string(user.MusicProvider), user.ProviderUserID,
		user.AccessToken, user.RefreshToken, user.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) UpdateUserProfile(ctx context.Context, id, name string, provider core.Provider) (*core.User, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, music_provider = ? WHERE id = ?`,
		name, string(provider), id)
	if err != nil {
		return nil, fmt.Errorf("update user profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return s.FindUser(ctx, id)
}

func (s *Store) SetSuperUser(ctx context.Context, id string, super bool) (*core.User, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_super_user = ? WHERE id = ?`, boolToInt(super), id)
	if err != nil {
		return nil, fmt.Errorf("set super user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return s.FindUser(ctx, id)
}

func (s *Store) UpdateUserCredentials(ctx context.Context, id, accessToken, refreshToken string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET access_token = ?, refresh_token = ? WHERE id = ?`,
		accessToken, refreshToken, id)
	if err != nil {
		return fmt.Errorf("update user credentials: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return nil
}
