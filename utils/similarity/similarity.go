// Package similarity scores how close a scraped forum title is to a
// metadata-provider title. Forum names are noisy (dots, release tags,
// stray punctuation) so both sides are normalized before comparison.
package similarity

import (
	"strings"
	"unicode"
)

// Normalize lowercases, folds "&" to "and", maps dots/dashes/underscores to
// spaces, drops other punctuation and collapses whitespace. Two titles that
// normalize equal are treated as an exact match by the enrichment scorer.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '.' || r == '-' || r == '_':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Score returns a similarity in [0,1] between the normalized forms of two
// titles: 1.0 for identical, 0.0 for disjoint, otherwise one minus the
// Levenshtein distance over the longer length. Titles that differ only by
// a short leading prefix ("The Goat Life" vs "Goat Life") score high via
// suffix containment before the edit distance is consulted.
func Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}
	if len(na) == 0 || len(nb) == 0 {
		return 0.0
	}

	if score := suffixContainment(na, nb); score > 0 {
		return score
	}

	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	return 1.0 - float64(distance(na, nb))/float64(longest)
}

// suffixContainment scores the case where the shorter title is a
// word-boundary suffix of the longer one and covers at least 60% of it.
// 60% coverage maps to 0.96, full coverage to 1.0. Zero when the shapes
// don't match.
func suffixContainment(a, b string) float64 {
	longer, shorter := a, b
	if len(a) < len(b) {
		longer, shorter = b, a
	}
	if !strings.HasSuffix(longer, shorter) {
		return 0
	}
	if cut := len(longer) - len(shorter); cut > 0 && longer[cut-1] != ' ' {
		return 0
	}
	ratio := float64(len(shorter)) / float64(len(longer))
	if ratio < 0.6 {
		return 0
	}
	return 0.90 + ratio*0.10
}

// distance is the Levenshtein edit distance, computed with a rolling pair
// of rows.
func distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = minOf(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func minOf(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
