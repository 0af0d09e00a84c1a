// Package provider implements the music catalog backends. Each backend
// satisfies core.CatalogClient; the registry dispatches on the provider tag
// carried by the user record or request.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"auxparty/internal/core"
)

// Per-provider request rates (requests per second). Spotify tolerates bursts;
// the Google API quota is the tightest of the three.
var defaultRateLimits = map[core.Provider]rate.Limit{
	core.ProviderSpotify: 10,
	core.ProviderApple:   10,
	core.ProviderYouTube: 5,
}

// RateLimiterMap holds one rate.Limiter per provider, created once at startup
// and shared by every request for that provider.
type RateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[core.Provider]*rate.Limiter
}

func NewRateLimiterMap() *RateLimiterMap {
	m := &RateLimiterMap{
		limiters: make(map[core.Provider]*rate.Limiter, len(defaultRateLimits)),
	}
	for name, limit := range defaultRateLimits {
		m.limiters[name] = rate.NewLimiter(limit, 1)
	}
	return m
}

// Wait blocks until the limiter for the given provider allows a request, or
// the context is canceled.
func (m *RateLimiterMap) Wait(ctx context.Context, name core.Provider) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}

// Registry owns one client per provider.
type Registry struct {
	clients map[core.Provider]core.CatalogClient
}

func NewRegistry(cfg *core.Config, tokens core.TokenSource, logger *zap.Logger) *Registry {
	limiters := NewRateLimiterMap()
	return &Registry{
		clients: map[core.Provider]core.CatalogClient{
			core.ProviderSpotify: NewSpotifyClient(tokens, limiters, logger),
			core.ProviderApple:   NewAppleClient(tokens, limiters, logger),
			core.ProviderYouTube: NewYouTubeClient(&cfg.YouTube, tokens, limiters, logger),
		},
	}
}

// For returns the catalog client for the given provider.
func (r *Registry) For(p core.Provider) (core.CatalogClient, error) {
	client, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported music provider %q", core.ErrValidation, p)
	}
	return client, nil
}

// getJSON performs an authenticated GET and decodes the JSON response into
// out. Non-2xx statuses map to ErrUpstreamProvider with a body excerpt.
func getJSON(ctx context.Context, client *http.Client, url, bearer string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrUpstreamProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", core.ErrUpstreamProvider, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", core.ErrUpstreamProvider, err)
	}
	return nil
}
