// Package classify turns raw forum titles and magnet display names into
// structured facts: languages, series/episode info, quality tags and a
// presentable title. All functions are pure, total and case-insensitive;
// they must tolerate arbitrary HTML-derived text.
package classify

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Canonical language tags, in catalog order. Detection reports a subset of
// these; anything else on the page is ignored.
var languageOrder = []string{"tamil", "telugu", "hindi", "malayalam", "kannada", "english"}

// KnownLanguages returns the canonical language tags in catalog order.
func KnownLanguages() []string {
	out := make([]string, len(languageOrder))
	copy(out, languageOrder)
	return out
}

var languagePatterns = map[string]*regexp.Regexp{
	"tamil":     regexp.MustCompile(`(?i)\b(tamil|tam)\b`),
	"telugu":    regexp.MustCompile(`(?i)\b(telugu|tel)\b`),
	"hindi":     regexp.MustCompile(`(?i)\b(hindi|hin)\b`),
	"malayalam": regexp.MustCompile(`(?i)\b(malayalam|mal)\b`),
	"kannada":   regexp.MustCompile(`(?i)\b(kannada|kan)\b`),
	"english":   regexp.MustCompile(`(?i)\b(english|eng)\b`),
}

// Languages returns the set of canonical language tags mentioned in text,
// in catalog order. The forum lists multi-audio releases as parenthesized
// lists ("(Tamil + Telugu)") or abbreviations ("TAM + TEL"); both match.
// An empty result means the item's audio is undetectable and the caller
// should skip it.
func Languages(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	for _, lang := range languageOrder {
		if languagePatterns[lang].MatchString(text) {
			out = append(out, lang)
		}
	}
	return out
}

// SeriesInfo is the outcome of series detection on a title.
type SeriesInfo struct {
	IsSeries bool
	Season   int
	Episodes []int // expanded inclusive range, ascending
}

var (
	seasonRe       = regexp.MustCompile(`(?i)\bS(?:eason\s*)?(\d{1,2})\b`)
	episodeRangeRe = regexp.MustCompile(`(?i)\bEp(?:isode)?s?\s*\(?\s*(\d{1,3})\s*(?:-|–|to)\s*(\d{1,3})\s*\)?`)
	episodeSingleRe = regexp.MustCompile(`(?i)\bEp(?:isode)?s?\s*\(?\s*(\d{1,3})\s*\)?`)
)

// Series recognizes "S02" / "Season 2" seasons and "EP(01-06)" /
// "Episode 1-6" episode ranges, expanding ranges to an explicit list.
// A lone "EP(04)" mention yields a single episode; a season with no
// episode marker yields IsSeries with no episode list.
func Series(text string) SeriesInfo {
	var info SeriesInfo

	if m := seasonRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			info.IsSeries = true
			info.Season = n
		}
	}

	if m := episodeRangeRe.FindStringSubmatch(text); m != nil {
		start, err1 := strconv.Atoi(m[1])
		end, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && start > 0 && end >= start && end-start < 500 {
			info.IsSeries = true
			for e := start; e <= end; e++ {
				info.Episodes = append(info.Episodes, e)
			}
		}
	} else if m := episodeSingleRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			info.IsSeries = true
			info.Episodes = []int{n}
		}
	}

	if info.IsSeries && info.Season == 0 {
		info.Season = 1
	}
	return info
}

// QualityInfo is the classification of one magnet display name. Unmatched
// fields are left empty, never guessed.
type QualityInfo struct {
	Resolution   string
	Codec        string
	Audio        string
	AudioBitrate string
	Size         string
	Source       string
}

type tokenRule struct {
	label  string
	tokens []string
}

// Ordered by priority; the first rule with a matching token wins.
var (
	resolutionRules = []tokenRule{
		{"4K", []string{"2160p", "4k", "uhd"}},
		{"1080p", []string{"1080p"}},
		{"720p", []string{"720p"}},
		{"480p", []string{"480p"}},
	}
	codecRules = []tokenRule{
		{"HEVC", []string{"x265", "h265", "h.265", "hevc"}},
		{"AVC", []string{"x264", "h264", "h.264", "avc"}},
		{"AV1", []string{"av1"}},
	}
	audioRules = []tokenRule{
		{"ATMOS", []string{"atmos"}},
		{"DD+", []string{"dd+", "ddp", "eac3", "e-ac3"}},
		{"DD", []string{"dd5.1", "ac3", "dolby digital"}},
		{"DTS", []string{"dts"}},
		{"AAC", []string{"aac"}},
		{"MP3", []string{"mp3"}},
	}
	sourceRules = []tokenRule{
		{"BluRay", []string{"bluray", "blu-ray", "brrip", "bdrip"}},
		{"WEB-DL", []string{"web-dl", "webdl"}},
		{"WEBRip", []string{"webrip", "web-rip"}},
		{"HDRip", []string{"hdrip", "hd-rip"}},
		{"HDTV", []string{"hdtv"}},
		{"DVDScr", []string{"dvdscr", "dvd-scr", "predvd", "pre-dvd"}},
		{"CAM", []string{"camrip", "hdcam", "hqcam", "cam"}},
	}

	sizeRe    = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(GB|MB)\b`)
	bitrateRe = regexp.MustCompile(`(?i)\b(\d{2,4})\s*kbps\b`)
)

func matchRules(lower string, rules []tokenRule) string {
	for _, rule := range rules {
		for _, tok := range rule.tokens {
			if strings.Contains(lower, tok) {
				return rule.label
			}
		}
	}
	return ""
}

// Quality classifies a magnet display name by priority-ordered substring
// tables (4K beats 1080p beats 720p, and so on per field).
func Quality(displayName string) QualityInfo {
	lower := strings.ToLower(displayName)

	info := QualityInfo{
		Resolution: matchRules(lower, resolutionRules),
		Codec:      matchRules(lower, codecRules),
		Audio:      matchRules(lower, audioRules),
		Source:     matchRules(lower, sourceRules),
	}
	if m := sizeRe.FindStringSubmatch(displayName); m != nil {
		info.Size = m[1] + strings.ToUpper(m[2])
	}
	if m := bitrateRe.FindStringSubmatch(displayName); m != nil {
		info.AudioBitrate = m[1] + "Kbps"
	}
	return info
}

// StreamLabel formats the "<quality> - <codec> - <audio> - <size>" display
// label for a stream, joining only the parts that were detected.
func StreamLabel(q QualityInfo) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{q.Resolution, q.Codec, q.Audio, q.Size} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " - ")
}

var (
	yearRe      = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	bracketRe   = regexp.MustCompile(`[\(\[\{][^\)\]\}]*[\)\]\}]`)
	dashRunRe   = regexp.MustCompile(`\s*-\s*(-\s*)*`)
	multiDashRe = regexp.MustCompile(`(^[\s\-_.]+)|([\s\-_.]+$)`)
)

// Technical tokens stripped from titles as standalone words. Seeded from
// the magnet-name tables above plus forum release conventions.
var technicalTokens = buildTechnicalTokens()

func buildTechnicalTokens() map[string]struct{} {
	set := map[string]struct{}{
		"untouched": {}, "org": {}, "original": {}, "true": {}, "proper": {},
		"hq": {}, "hd": {}, "esub": {}, "esubs": {}, "msub": {}, "msubs": {},
		"audio": {}, "audios": {}, "print": {}, "rip": {}, "multi": {},
		"dual": {}, "line": {}, "clean": {}, "real": {}, "new": {},
		"source": {}, "dvd": {}, "10bit": {}, "8bit": {},
	}
	for _, rules := range [][]tokenRule{resolutionRules, codecRules, audioRules, sourceRules} {
		for _, rule := range rules {
			for _, tok := range rule.tokens {
				set[tok] = struct{}{}
			}
		}
	}
	return set
}

// CleanTitle strips bracketed technical noise, release tokens, years and
// language names from a scraped title, collapsing residual whitespace and
// dashes. When stripping would empty the result it falls back to the
// minimally-cleaned input: a non-empty input never yields an empty title.
func CleanTitle(raw string) string {
	minimal := collapseSpace(raw)
	if minimal == "" {
		return ""
	}

	// Episode/season markers go first: their parentheses would otherwise be
	// consumed whole by the bracket strip, stranding a bare "EP" in the title.
	s := episodeRangeRe.ReplaceAllString(raw, " ")
	s = episodeSingleRe.ReplaceAllString(s, " ")
	s = seasonRe.ReplaceAllString(s, " ")
	s = sizeRe.ReplaceAllString(s, " ")
	s = bitrateRe.ReplaceAllString(s, " ")
	s = bracketRe.ReplaceAllString(s, " ")
	s = yearRe.ReplaceAllString(s, " ")

	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '+' || r == ','
	})
	kept := make([]string, 0, len(words))
	for _, w := range words {
		trimmed := multiDashRe.ReplaceAllString(w, "")
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if _, isTech := technicalTokens[lower]; isTech {
			continue
		}
		if isLanguageWord(lower) {
			continue
		}
		kept = append(kept, trimmed)
	}

	out := dashRunRe.ReplaceAllString(strings.Join(kept, " "), " - ")
	out = collapseSpace(strings.Trim(out, " -"))
	if out == "" {
		return minimal
	}
	return out
}

func isLanguageWord(lower string) bool {
	for _, re := range languagePatterns {
		if loc := re.FindStringIndex(lower); loc != nil && loc[0] == 0 && loc[1] == len(lower) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Topics for trailers, teasers and other promo material carry no playable
// content and are filtered out before scraping details.
var junkWords = []string{"trailer", "teaser", "promo", "first look", "sneak peek", "making of"}

// IsJunkTitle reports whether a topic title is promotional material rather
// than a release.
func IsJunkTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, w := range junkWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// YearOf extracts the first plausible release year token from text, 0 when
// none is present.
func YearOf(text string) int {
	m := yearRe.FindString(text)
	if m == "" {
		return 0
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return y
}

// SortLanguages orders tags into canonical catalog order; unknown tags sort
// last alphabetically. Used when merging language sets from multiple text
// sources on one page.
func SortLanguages(tags []string) []string {
	rank := make(map[string]int, len(languageOrder))
	for i, lang := range languageOrder {
		rank[lang] = i
	}
	out := append([]string(nil), tags...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// MergeLanguages unions two tag sets preserving canonical order.
func MergeLanguages(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, t := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	return SortLanguages(merged)
}
