package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"auxparty/internal/core"
)

// expirySkew refreshes slightly early so a token never dies mid pagination
// loop.
const expirySkew = time.Minute

var appleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://appleid.apple.com/auth/authorize",
	TokenURL: "https://appleid.apple.com/auth/token",
}

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// Tokens hands out currently-valid provider access tokens. Refreshes are
// collapsed with singleflight so concurrent requests for the same user hit
// the provider's token endpoint once, and rotated credentials are persisted
// before anyone sees the new token.
type Tokens struct {
	store   core.Store
	logger  *zap.Logger
	configs map[core.Provider]*oauth2.Config

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]cachedToken
}

var _ core.TokenSource = (*Tokens)(nil)

func NewTokens(cfg *core.Config, store core.Store, logger *zap.Logger) *Tokens {
	return &Tokens{
		store:  store,
		logger: logger.Named("tokens"),
		configs: map[core.Provider]*oauth2.Config{
			core.ProviderSpotify: {
				ClientID:     cfg.Spotify.ClientID,
				ClientSecret: cfg.Spotify.ClientSecret,
				RedirectURL:  cfg.Spotify.RedirectURL,
				Endpoint: oauth2.Endpoint{
					AuthURL:  spotifyauth.AuthURL,
					TokenURL: spotifyauth.TokenURL,
				},
			},
			core.ProviderApple: {
				ClientID:     cfg.Apple.ClientID,
				ClientSecret: cfg.Apple.ClientSecret,
				RedirectURL:  cfg.Apple.RedirectURL,
				Endpoint:     appleEndpoint,
			},
			core.ProviderYouTube: {
				ClientID:     cfg.YouTube.ClientID,
				ClientSecret: cfg.YouTube.ClientSecret,
				RedirectURL:  cfg.YouTube.RedirectURL,
				Endpoint:     googleEndpoint,
			},
		},
		cache: make(map[string]cachedToken),
	}
}

// ValidAccessToken returns an access token known to be unexpired, refreshing
// through the provider's token endpoint when the cached one ran out.
func (t *Tokens) ValidAccessToken(ctx context.Context, userID string, provider core.Provider) (string, error) {
	key := userID + "|" + string(provider)

	t.mu.Lock()
	cached, ok := t.cache[key]
	t.mu.Unlock()
	if ok && time.Until(cached.expiresAt) > expirySkew {
		return cached.accessToken, nil
	}

	result, err, _ := t.group.Do(key, func() (any, error) {
		return t.refresh(ctx, userID, provider, key)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (t *Tokens) refresh(ctx context.Context, userID string, provider core.Provider, key string) (string, error) {
	// Re-check under the flight: a concurrent caller may have refreshed while
	// we waited on the singleflight lock.
	t.mu.Lock()
	cached, ok := t.cache[key]
	t.mu.Unlock()
	if ok && time.Until(cached.expiresAt) > expirySkew {
		return cached.accessToken, nil
	}

	user, err := t.store.FindUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if user.RefreshToken == "" {
		return "", fmt.Errorf("%w: user %s has no refresh token for %s",
			core.ErrUnauthenticated, userID, provider)
	}

	config, ok := t.configs[provider]
	if !ok {
		return "", fmt.Errorf("%w: no oauth config for provider %s", core.ErrValidation, provider)
	}

	token, err := config.TokenSource(ctx, &oauth2.Token{RefreshToken: user.RefreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("%w: refresh %s token: %v", core.ErrUnauthenticated, provider, err)
	}

	// Providers may rotate the refresh token; keep the old one if they don't.
	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = user.RefreshToken
	}
	if err := t.store.UpdateUserCredentials(ctx, userID, token.AccessToken, refreshToken); err != nil {
		return "", fmt.Errorf("persist refreshed credentials: %w", err)
	}

	t.mu.Lock()
	t.cache[key] = cachedToken{accessToken: token.AccessToken, expiresAt: token.Expiry}
	t.mu.Unlock()

	t.logger.Debug("refreshed provider token",
		zap.String("user", userID),
		zap.String("provider", string(provider)),
		zap.Time("expires", token.Expiry))

	return token.AccessToken, nil
}
