package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"indiastreamz/models"
)

const (
	tmdbBaseURL      = "https://api.themoviedb.org/3"
	tmdbImageBaseURL = "https://image.tmdb.org/t/p"
	// Optimized image sizes instead of "original": posters render at card
	// size, backdrops as 1080p backgrounds.
	tmdbPosterSize   = "w500"
	tmdbBackdropSize = "w1280"
)

type tmdbClient struct {
	apiKey   string
	language string
	httpc    *http.Client

	// Rate limiting
	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func newTMDBClient(apiKey, language string, httpc *http.Client) *tmdbClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &tmdbClient{
		apiKey:      strings.TrimSpace(apiKey),
		language:    language,
		httpc:       httpc,
		minInterval: 20 * time.Millisecond, // TMDB has generous rate limits
	}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

// doGET performs an HTTP GET with rate limiting and retry with exponential
// backoff on 429 and 5xx responses.
func (c *tmdbClient) doGET(ctx context.Context, endpoint string, v any) error {
	var lastErr error
	backoff := 300 * time.Millisecond

	for attempt := 0; attempt < 3; attempt++ {
		c.throttleMu.Lock()
		since := time.Since(c.lastRequest)
		if since < c.minInterval {
			time.Sleep(c.minInterval - since)
		}
		c.lastRequest = time.Now()
		c.throttleMu.Unlock()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("[tmdb] http error (attempt %d/3): %v", attempt+1, err)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			log.Printf("[tmdb] rate limited or server error (attempt %d/3): status %d", attempt+1, resp.StatusCode)
			lastErr = fmt.Errorf("tmdb request failed: %s", resp.Status)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("tmdb request failed: %s", resp.Status)
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		if err != nil {
			return err
		}
		return nil
	}

	return lastErr
}

// Candidate is a single provider search hit, before scoring.
type Candidate struct {
	TmdbID      int64
	Title       string
	Year        int
	Popularity  float64
	VoteAverage float64
}

type tmdbSearchResponse struct {
	Results []struct {
		ID           int64   `json:"id"`
		Title        string  `json:"title"`
		Name         string  `json:"name"`
		ReleaseDate  string  `json:"release_date"`
		FirstAirDate string  `json:"first_air_date"`
		PosterPath   string  `json:"poster_path"`
		Popularity   float64 `json:"popularity"`
		VoteAverage  float64 `json:"vote_average"`
	} `json:"results"`
}

// search queries TMDB by title and optional year for the given content
// type, models.TypeMovie or models.TypeSeries.
func (c *tmdbClient) search(ctx context.Context, query string, year int, contentType string) ([]Candidate, error) {
	if !c.isConfigured() {
		return nil, errors.New("tmdb api key not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	apiMediaType := "movie"
	if contentType == models.TypeSeries {
		apiMediaType = "tv"
	}

	endpoint, err := url.JoinPath(tmdbBaseURL, "search", apiMediaType)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("query", query)
	q.Set("language", normalizeLanguage(c.language))
	if year > 0 {
		if apiMediaType == "movie" {
			q.Set("primary_release_year", strconv.Itoa(year))
		} else {
			q.Set("first_air_date_year", strconv.Itoa(year))
		}
	}

	var payload tmdbSearchResponse
	if err := c.doGET(ctx, endpoint+"?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(payload.Results))
	for _, r := range payload.Results {
		name := r.Title
		if name == "" {
			name = r.Name
		}
		if name == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			TmdbID:      r.ID,
			Title:       name,
			Year:        parseTMDBYear(r.ReleaseDate, r.FirstAirDate),
			Popularity:  r.Popularity,
			VoteAverage: r.VoteAverage,
		})
	}
	return candidates, nil
}

// Details is the consumed subset of a TMDB details response, flattened for
// the merge step.
type Details struct {
	TmdbID      int64
	Title       string
	Year        int
	Overview    string
	PosterURL   string
	BackdropURL string
	Genres      []string
	Cast        []string
	Director    []string
	Writer      []string
	Runtime     string
	Rating      string
	Trailers    []models.Trailer
}

type tmdbDetailsResponse struct {
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	Name           string  `json:"name"`
	Overview       string  `json:"overview"`
	PosterPath     string  `json:"poster_path"`
	BackdropPath   string  `json:"backdrop_path"`
	ReleaseDate    string  `json:"release_date"`
	FirstAirDate   string  `json:"first_air_date"`
	Runtime        int     `json:"runtime"`
	EpisodeRunTime []int   `json:"episode_run_time"`
	VoteAverage    float64 `json:"vote_average"`
	Genres         []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Credits struct {
		Cast []struct {
			Name string `json:"name"`
		} `json:"cast"`
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
	Videos struct {
		Results []struct {
			Key  string `json:"key"`
			Site string `json:"site"`
			Type string `json:"type"`
		} `json:"results"`
	} `json:"videos"`
}

const maxCastNames = 5

// details fetches full provider details, with credits and videos appended
// in the same call.
func (c *tmdbClient) details(ctx context.Context, tmdbID int64, contentType string) (*Details, error) {
	if !c.isConfigured() {
		return nil, errors.New("tmdb api key not configured")
	}

	apiMediaType := "movie"
	if contentType == models.TypeSeries {
		apiMediaType = "tv"
	}

	endpoint, err := url.JoinPath(tmdbBaseURL, apiMediaType, strconv.FormatInt(tmdbID, 10))
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("language", normalizeLanguage(c.language))
	q.Set("append_to_response", "credits,videos")

	var payload tmdbDetailsResponse
	if err := c.doGET(ctx, endpoint+"?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	d := &Details{
		TmdbID:      payload.ID,
		Title:       payload.Title,
		Year:        parseTMDBYear(payload.ReleaseDate, payload.FirstAirDate),
		Overview:    payload.Overview,
		PosterURL:   buildTMDBImage(payload.PosterPath, tmdbPosterSize),
		BackdropURL: buildTMDBImage(payload.BackdropPath, tmdbBackdropSize),
	}
	if d.Title == "" {
		d.Title = payload.Name
	}

	for _, g := range payload.Genres {
		if g.Name != "" {
			d.Genres = append(d.Genres, g.Name)
		}
	}
	for _, member := range payload.Credits.Cast {
		if member.Name == "" {
			continue
		}
		d.Cast = append(d.Cast, member.Name)
		if len(d.Cast) == maxCastNames {
			break
		}
	}
	for _, member := range payload.Credits.Crew {
		switch member.Job {
		case "Director":
			d.Director = append(d.Director, member.Name)
		case "Writer", "Screenplay", "Story":
			d.Writer = append(d.Writer, member.Name)
		}
	}

	if payload.Runtime > 0 {
		d.Runtime = fmt.Sprintf("%d min", payload.Runtime)
	} else if len(payload.EpisodeRunTime) > 0 && payload.EpisodeRunTime[0] > 0 {
		d.Runtime = fmt.Sprintf("%d min", payload.EpisodeRunTime[0])
	}
	if payload.VoteAverage > 0 {
		d.Rating = strconv.FormatFloat(payload.VoteAverage, 'f', 1, 64)
	}

	for _, video := range payload.Videos.Results {
		if !strings.EqualFold(video.Site, "youtube") || video.Key == "" {
			continue
		}
		if video.Type != "Trailer" && video.Type != "Teaser" {
			continue
		}
		d.Trailers = append(d.Trailers, models.Trailer{Source: video.Key, Type: video.Type})
	}

	return d, nil
}

func parseTMDBYear(movieDate, seriesDate string) int {
	date := movieDate
	if date == "" {
		date = seriesDate
	}
	if len(date) < 4 {
		return 0
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t.Year()
	}
	if y, err := strconv.Atoi(date[:4]); err == nil {
		return y
	}
	return 0
}

func buildTMDBImage(imagePath, size string) string {
	trimmed := strings.TrimSpace(imagePath)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", tmdbImageBaseURL, path.Join(size, strings.TrimPrefix(trimmed, "/")))
}

func normalizeLanguage(lang string) string {
	lang = strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if len(lang) == 2 {
		return strings.ToLower(lang) + "-US"
	}
	if len(lang) == 5 && lang[2] == '-' {
		return strings.ToLower(lang[:2]) + "-" + strings.ToUpper(lang[3:])
	}
	return "en-US"
}
