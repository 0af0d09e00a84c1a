// Package fuzzy provides text normalization and word-set similarity scoring for
// reconciling song metadata across music catalogs.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	punctRegex      = regexp.MustCompile(`[^\w\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize lowercases, folds diacritics, strips everything that is neither a
// word character nor whitespace, and collapses internal whitespace.
func (n *Normalizer) Normalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = strings.ToLower(text)
	text = punctRegex.ReplaceAllString(text, "")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// WordSet tokenizes the normalized form of text into a set of unique words.
// Duplicate words merge; multiplicity never counts.
func (n *Normalizer) WordSet(text string) map[string]struct{} {
	normalized := n.Normalize(text)
	if normalized == "" {
		return map[string]struct{}{}
	}

	set := make(map[string]struct{})
	for _, word := range strings.Fields(normalized) {
		set[word] = struct{}{}
	}
	return set
}

// Similarity computes the Jaccard index over the word sets of both inputs:
// |A ∩ B| / |A ∪ B|. Identical inputs score 1.0; an empty side scores 0.0.
func (n *Normalizer) Similarity(a, b string) float64 {
	setA := n.WordSet(a)
	setB := n.WordSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for word := range setA {
		if _, ok := setB[word]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}
