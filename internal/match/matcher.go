// Package match resolves oracle-suggested tracks against a live music catalog.
package match

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"auxparty/internal/core"
	"auxparty/pkg/fuzzy"
)

const (
	// searchLimit bounds both search passes.
	searchLimit = 5
	// similarityThreshold must be strictly exceeded on title AND artist.
	// A candidate scoring exactly at the threshold is rejected.
	similarityThreshold = 0.8
)

type Matcher struct {
	normalizer *fuzzy.Normalizer
	logger     *zap.Logger
}

func NewMatcher(logger *zap.Logger) *Matcher {
	return &Matcher{
		normalizer: fuzzy.NewNormalizer(),
		logger:     logger.Named("match"),
	}
}

// Resolve finds the catalog track for want, or nil when the catalog has no
// acceptable version. A nil result is a valid outcome, not an error: the
// caller drops the suggestion rather than playing a wrong song.
//
// Two search passes run in order over the normalized "title artist" string:
// an exact pass with the whole phrase quoted, then a loose pass without
// quoting only when the exact pass came back empty. Only the top result of
// the pass that produced candidates is scored; it wins when both title and
// artist similarity strictly exceed the threshold, otherwise the track stays
// unresolved.
func (m *Matcher) Resolve(ctx context.Context, catalog core.CatalogClient, userID string, want core.Track) (*core.Track, error) {
	normalized := m.normalizer.Normalize(want.Title + " " + want.Artist)
	queries := []string{
		`"` + normalized + `"`,
		normalized,
	}

	var candidate *core.Track
	for _, query := range queries {
		candidates, err := catalog.SearchTrack(ctx, userID, query, searchLimit)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			candidate = &candidates[0]
			break
		}
	}
	if candidate == nil {
		m.logger.Debug("no search results",
			zap.String("title", want.Title),
			zap.String("artist", want.Artist))
		return nil, nil
	}

	titleSim := m.normalizer.Similarity(candidate.Title, want.Title)
	artistSim := m.normalizer.Similarity(primaryArtist(candidate.Artist), want.Artist)

	if titleSim > similarityThreshold && artistSim > similarityThreshold {
		m.logger.Debug("resolved track",
			zap.String("title", want.Title),
			zap.String("artist", want.Artist),
			zap.String("providerId", candidate.ProviderTrackID),
			zap.Float64("titleSimilarity", titleSim),
			zap.Float64("artistSimilarity", artistSim))
		return candidate, nil
	}

	m.logger.Debug("no acceptable catalog match",
		zap.String("title", want.Title),
		zap.String("artist", want.Artist),
		zap.Float64("titleSimilarity", titleSim),
		zap.Float64("artistSimilarity", artistSim))
	return nil, nil
}

// primaryArtist returns the first listed artist of a joined credit string.
// Featured artists must not dilute the similarity score.
func primaryArtist(artist string) string {
	if i := strings.Index(artist, ","); i >= 0 {
		return strings.TrimSpace(artist[:i])
	}
	return artist
}
