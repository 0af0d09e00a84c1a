// Package oracle generates themed playlists with an LLM from participants'
// listening histories.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"auxparty/internal/core"
	"auxparty/pkg/fuzzy"
)

// chatClient is the minimal completion surface the backends implement.
type chatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Oracle struct {
	config     *core.OracleConfig
	logger     *zap.Logger
	client     chatClient
	normalizer *fuzzy.Normalizer

	playlistLength int
	historyLimit   int
}

var _ core.Oracle = (*Oracle)(nil)

func New(cfg *core.Config, logger *zap.Logger) (*Oracle, error) {
	var client chatClient
	var err error

	switch cfg.Oracle.Provider {
	case "openai":
		client, err = newOpenAIClient(&cfg.Oracle)
	case "anthropic":
		client, err = newAnthropicClient(&cfg.Oracle)
	default:
		return nil, fmt.Errorf("unsupported oracle provider: %s", cfg.Oracle.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Oracle.Provider, err)
	}

	return &Oracle{
		config:         &cfg.Oracle,
		logger:         logger.Named("oracle"),
		client:         client,
		normalizer:     fuzzy.NewNormalizer(),
		playlistLength: cfg.App.PlaylistLength,
		historyLimit:   cfg.App.HistoryPromptLimit,
	}, nil
}

const systemPromptTemplate = `You are a DJ assembling a playlist for a shared listening event.
Respond with a JSON array of exactly %d songs and nothing else. Each element
must be an object with "title", "artist" and "album" string fields. Only
include real, released songs. No markdown, no commentary.`

func (o *Oracle) GeneratePlaylist(ctx context.Context, req core.OracleRequest) ([]core.Track, error) {
	system := fmt.Sprintf(systemPromptTemplate, o.playlistLength)
	user := o.buildUserPrompt(req)

	o.logger.Debug("requesting playlist",
		zap.String("theme", req.Theme),
		zap.Int("participants", len(req.Histories)),
		zap.String("model", o.config.Model))

	content, err := o.client.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrOracle, err)
	}

	suggestions, err := parsePlaylist(content)
	if err != nil {
		o.logger.Error("unusable oracle response",
			zap.Error(err),
			zap.String("content", content))
		return nil, err
	}
	if len(suggestions) > o.playlistLength {
		suggestions = suggestions[:o.playlistLength]
	}

	tracks := make([]core.Track, 0, len(suggestions))
	for _, s := range suggestions {
		tracks = append(tracks, core.Track{
			Title:    s.Title,
			Artist:   s.Artist,
			Album:    s.Album,
			Provider: req.CreatorProvider,
		})
	}

	o.logger.Info("playlist generated",
		zap.String("theme", req.Theme),
		zap.Int("count", len(tracks)))
	return tracks, nil
}

// buildUserPrompt condenses the participants' histories into a recency-first,
// deduplicated sample. Histories are stored oldest-first, so the combined list
// is reversed before sampling; the first occurrence of each song wins.
func (o *Oracle) buildUserPrompt(req core.OracleRequest) string {
	var combined []core.Track
	for _, history := range req.Histories {
		combined = append(combined, history...)
	}
	for i, j := 0, len(combined)-1; i < j; i, j = i+1, j-1 {
		combined[i], combined[j] = combined[j], combined[i]
	}

	seen := make(map[string]struct{})
	var sample []string
	for _, t := range combined {
		if len(sample) >= o.historyLimit {
			break
		}
		key := o.normalizer.Normalize(t.Title) + "-" + o.normalizer.Normalize(t.Artist)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sample = append(sample, t.Title+" - "+t.Artist)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Theme: %s\n", req.Theme)
	if len(sample) > 0 {
		fmt.Fprintf(&b, "The guests recently listened to: %s\n", strings.Join(sample, ", "))
	}
	b.WriteString("Build the playlist.")
	return b.String()
}

type suggestion struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// parsePlaylist extracts the JSON array from the completion. Models sometimes
// wrap output in code fences or prose; anything without a well-formed array
// is fatal.
func parsePlaylist(content string) ([]suggestion, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("%w: response is not a JSON array", core.ErrOracle)
	}

	var suggestions []suggestion
	if err := json.Unmarshal([]byte(content[start:end+1]), &suggestions); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", core.ErrOracle, err)
	}
	if len(suggestions) == 0 {
		return nil, fmt.Errorf("%w: response contains no songs", core.ErrOracle)
	}
	return suggestions, nil
}
