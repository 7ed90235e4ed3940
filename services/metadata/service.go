package metadata

import (
	"context"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"indiastreamz/models"
	"indiastreamz/utils/classify"
	"indiastreamz/utils/similarity"
)

// matchFloor is the minimum score for a confident provider match. Records
// below the floor are still enriched but flagged weak so clients can tell.
const matchFloor = 55.0

type Service struct {
	tmdb           *tmdbClient
	concurrency    int
	variationDelay time.Duration
}

func NewService(apiKey, language string, httpc *http.Client, concurrency int, variationDelay time.Duration) *Service {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Service{
		tmdb:           newTMDBClient(apiKey, language, httpc),
		concurrency:    concurrency,
		variationDelay: variationDelay,
	}
}

func (s *Service) IsConfigured() bool {
	return s.tmdb.isConfigured()
}

// EnrichBatch fills provider metadata into the given records in place.
// Searches for the whole batch run concurrently, then detail fetches for
// the matched records. A record whose lookup fails is left as scraped, so
// a bad provider day never loses content.
func (s *Service) EnrichBatch(ctx context.Context, metas []*models.Meta) {
	if len(metas) == 0 {
		return
	}
	if !s.IsConfigured() {
		log.Printf("[metadata] tmdb api key not configured, serving scraped metadata only")
		return
	}

	type match struct {
		candidate Candidate
		score     float64
	}
	matches := make([]*match, len(metas))

	searches := pool.New().WithMaxGoroutines(s.concurrency)
	for i, m := range metas {
		searches.Go(func() {
			c, score, ok := s.bestCandidate(ctx, m)
			if ok {
				matches[i] = &match{candidate: c, score: score}
			}
		})
	}
	searches.Wait()

	details := pool.New().WithMaxGoroutines(s.concurrency)
	for i, m := range metas {
		if matches[i] == nil {
			continue
		}
		details.Go(func() {
			d, err := s.tmdb.details(ctx, matches[i].candidate.TmdbID, m.Type)
			if err != nil {
				log.Printf("[metadata] details fetch failed for %q (tmdb %d): %v", m.CleanName, matches[i].candidate.TmdbID, err)
				return
			}
			confidence := models.MatchStrong
			if matches[i].score < matchFloor {
				confidence = models.MatchWeak
			}
			merge(m, d, confidence)
		})
	}
	details.Wait()
}

// bestCandidate searches the provider across title variations and returns
// the highest scoring candidate. It stops early once a variation produces
// an exact title match.
func (s *Service) bestCandidate(ctx context.Context, m *models.Meta) (Candidate, float64, bool) {
	var best Candidate
	bestScore := -1.0

	variations := titleVariations(m.CleanName)
	for vi, variation := range variations {
		if vi > 0 && s.variationDelay > 0 {
			select {
			case <-ctx.Done():
				return best, bestScore, bestScore >= 0
			case <-time.After(s.variationDelay):
			}
		}

		candidates, err := s.tmdb.search(ctx, variation, m.Year, m.Type)
		if err != nil {
			log.Printf("[metadata] search failed for %q: %v", variation, err)
			continue
		}
		for _, c := range candidates {
			score := scoreMatch(c, m.CleanName, m.Year)
			if score > bestScore {
				best = c
				bestScore = score
			}
		}
		// An exact title component scores 100; further variations can only
		// differ in year and popularity bonuses.
		if bestScore >= 100 {
			break
		}
	}

	return best, bestScore, bestScore >= 0
}

// titleVariations generates alternative search queries for titles the
// forum spells differently than the provider.
func titleVariations(title string) []string {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, v)
	}

	add(title)
	if strings.HasPrefix(strings.ToLower(title), "the ") {
		add(title[4:])
	} else {
		add("The " + title)
	}
	if i := strings.Index(title, " ("); i > 0 {
		add(title[:i])
	}
	if i := strings.Index(title, " - "); i > 0 {
		add(title[:i])
	}
	add(classify.CleanTitle(title))

	return out
}

// scoreMatch rates a search candidate against the scraped title and year.
// Title agreement dominates, year agreement breaks ties between remakes,
// popularity nudges ambiguous cases toward the well known release.
func scoreMatch(c Candidate, title string, year int) float64 {
	normTitle := similarity.Normalize(title)
	normCandidate := similarity.Normalize(c.Title)

	var score float64
	switch {
	case normTitle != "" && normTitle == normCandidate:
		score = 100
	case normTitle != "" && normCandidate != "" &&
		(strings.Contains(normCandidate, normTitle) || strings.Contains(normTitle, normCandidate)):
		score = 60
	default:
		score = similarity.Score(title, c.Title) * 50
	}

	if year > 0 && c.Year > 0 {
		switch diff := year - c.Year; {
		case diff == 0:
			score += 30
		case diff == 1 || diff == -1:
			score += 15
		}
	}

	score += math.Min(c.Popularity/10, 10)
	return score
}

// merge overlays provider details onto a scraped record. Identity fields
// (ID, type, languages, season, episodes, qualities) always stay as
// derived from the forum; provider fields win only when non-empty.
func merge(m *models.Meta, d *Details, confidence string) {
	if d.Title != "" {
		m.Name = d.Title
	}
	if d.Overview != "" {
		m.Description = d.Overview
	}
	if d.PosterURL != "" {
		m.Poster = d.PosterURL
	}
	if d.BackdropURL != "" {
		m.Background = d.BackdropURL
	}
	if len(d.Genres) > 0 {
		m.Genres = d.Genres
	}
	if len(d.Cast) > 0 {
		m.Cast = d.Cast
	}
	if len(d.Director) > 0 {
		m.Director = d.Director
	}
	if len(d.Writer) > 0 {
		m.Writer = d.Writer
	}
	if d.Runtime != "" {
		m.Runtime = d.Runtime
	}
	if d.Rating != "" {
		m.ImdbRating = d.Rating
	}
	if len(d.Trailers) > 0 {
		m.Trailers = d.Trailers
	}
	if d.Year > 0 {
		m.ReleaseInfo = strconv.Itoa(d.Year)
		if m.Year == 0 {
			m.Year = d.Year
		}
	}
	m.TmdbID = d.TmdbID
	m.MatchConfidence = confidence
}
