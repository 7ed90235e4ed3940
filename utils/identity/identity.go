// Package identity derives the deterministic content ids that let repeated
// scrapes of the same release collide onto the same cache key.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases a title into a hyphen slug: non-alphanumerics collapse to
// single hyphens, edges trimmed.
func Slug(title string) string {
	s := nonSlugRe.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(s, "-")
}

// langPrefix is the leading catalog hint on an id: the single language tag
// when the set has exactly one element, "multi" for several, "unknown" when
// empty (callers should already have rejected language-less items).
func langPrefix(languages []string) string {
	switch len(languages) {
	case 0:
		return "unknown"
	case 1:
		return languages[0]
	default:
		return "multi"
	}
}

// contentHash is the first 8 hex chars of SHA-1 over the normalized
// identity string, appended for collision resistance between titles that
// slug identically.
func contentHash(normalized string) string {
	sum := sha1.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])[:8]
}

// MovieID derives the cache id for a movie. Deterministic: identical
// (title, languages) always yields the same id.
func MovieID(title string, languages []string) string {
	slug := Slug(title)
	norm := slug + "|" + strings.Join(languages, ",")
	return fmt.Sprintf("%s-%s-%s", langPrefix(languages), slug, contentHash(norm))
}

// SeriesID derives the cache id for one season of a series; the season is
// folded into the hash input so the same show at another season gets a
// distinct id.
func SeriesID(title string, season int, languages []string) string {
	slug := Slug(title)
	norm := fmt.Sprintf("%s|s%d|%s", slug, season, strings.Join(languages, ","))
	return fmt.Sprintf("%s-%s-s%d-%s", langPrefix(languages), slug, season, contentHash(norm))
}

// EpisodeStreamID addresses the per-episode stream list of a series. It is
// a composite key, not an identity: the series' own id stays SeriesID.
func EpisodeStreamID(seriesID string, season, episode int) string {
	return fmt.Sprintf("%s:%d:%d", seriesID, season, episode)
}
