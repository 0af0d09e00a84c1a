package provider

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"auxparty/internal/core"
)

// staticTokens satisfies core.TokenSource with a fixed token; provider tests
// never exercise refresh.
type staticTokens struct{}

func (staticTokens) ValidAccessToken(context.Context, string, core.Provider) (string, error) {
	return "test-token", nil
}

func TestRegistryDispatch(t *testing.T) {
	registry := NewRegistry(core.DefaultConfig(), staticTokens{}, zap.NewNop())

	for _, p := range []core.Provider{core.ProviderSpotify, core.ProviderApple, core.ProviderYouTube} {
		client, err := registry.For(p)
		if err != nil {
			t.Errorf("For(%s): %v", p, err)
		}
		if client == nil {
			t.Errorf("For(%s) returned nil client", p)
		}
	}

	if _, err := registry.For(core.Provider("tidal")); !errors.Is(err, core.ErrValidation) {
		t.Errorf("For(tidal) = %v, want ErrValidation", err)
	}
}

func TestRateLimiterMapUnknownProvider(t *testing.T) {
	m := NewRateLimiterMap()
	if err := m.Wait(context.Background(), core.Provider("unknown")); err != nil {
		t.Errorf("Wait for unknown provider should be a no-op, got %v", err)
	}
}
