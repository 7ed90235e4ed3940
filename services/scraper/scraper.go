// Package scraper retrieves the upstream forum's homepage and per-topic
// detail pages and extracts structured listings and magnet links from the
// HTML. It does no caching and no scheduling; the scrape loop owns pacing
// and skip decisions.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	retry "github.com/avast/retry-go/v4"

	"indiastreamz/models"
	"indiastreamz/utils/classify"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Client fetches and parses forum pages. Fetches retry a bounded number of
// times with linearly growing delay; a failed page is the caller's problem
// to skip, never a reason to abort a batch.
type Client struct {
	baseURL    string
	httpc      *http.Client
	attempts   uint
	retryDelay time.Duration
}

// New builds a Client for the forum at baseURL. A nil httpc gets a default
// client with a 20 second timeout.
func New(baseURL string, httpc *http.Client, retries int) *Client {
	if retries < 1 {
		retries = 3
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpc:      httpc,
		attempts:   uint(retries),
		retryDelay: 2 * time.Second,
	}
}

// Listing is one content link found on the homepage, in homepage order
// (newest first by site convention).
type Listing struct {
	Title   string
	URL     string
	TopicID string
}

// Topic URLs look like /forums/topic/123456-movie-name-2024-tamil/ and the
// site also emits query-string-as-path variants of the same topic. The
// numeric id is the canonical identity.
var topicRe = regexp.MustCompile(`/topic/(\d+)-([^/?#&]*)`)

// fetchPage GETs a URL with bounded retries and linear backoff.
func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", userAgent)

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 400 {
				return fmt.Errorf("fetch %s: %s", pageURL, resp.Status)
			}

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if len(body) == 0 {
				return fmt.Errorf("fetch %s: empty body", pageURL)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * c.retryDelay
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Listings fetches the homepage and extracts every topic link, deduplicated
// by numeric topic id. Links with a missing or malformed topic identifier
// (a bare "-0" slug is the site's placeholder for deleted topics) are
// discarded. Homepage order is preserved.
func (c *Client) Listings(ctx context.Context) ([]Listing, error) {
	body, err := c.fetchPage(ctx, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("homepage: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse homepage: %w", err)
	}

	seen := make(map[string]struct{})
	var listings []Listing

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := topicRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id, slug := m[1], m[2]
		if slug == "" || slug == "0" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}

		title := normSpace(sel.Text())
		if title == "" {
			title, _ = sel.Attr("title")
			title = normSpace(title)
		}
		if title == "" {
			return
		}

		seen[id] = struct{}{}
		listings = append(listings, Listing{
			Title:   title,
			URL:     c.resolveURL(href),
			TopicID: id,
		})
	})

	return listings, nil
}

// Details fetches a topic page and drafts it: canonical title, magnet
// links with their display names, synopsis and classification. Returns
// (nil, nil) for items that are not cacheable: promo topics and topics
// with no magnet links.
func (c *Client) Details(ctx context.Context, pageURL, fallbackTitle string) (*models.Draft, error) {
	body, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	title := normSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = normSpace(fallbackTitle)
	}
	if title == "" || classify.IsJunkTitle(title) {
		return nil, nil
	}

	magnets := extractMagnets(doc)
	if len(magnets) == 0 {
		return nil, nil
	}

	languages := classify.Languages(title)
	for _, mg := range magnets {
		languages = classify.MergeLanguages(languages, classify.Languages(mg.DisplayName))
	}

	series := classify.Series(title)

	return &models.Draft{
		Title:     title,
		PageURL:   pageURL,
		Synopsis:  extractSynopsis(doc),
		Languages: languages,
		Year:      classify.YearOf(title),
		IsSeries:  series.IsSeries,
		Season:    series.Season,
		Episodes:  series.Episodes,
		Magnets:   magnets,
	}, nil
}

func extractMagnets(doc *goquery.Document) []models.Magnet {
	seen := make(map[string]struct{})
	var magnets []models.Magnet

	doc.Find(`a[href^="magnet:"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		hash, name, ok := ParseMagnet(href)
		if !ok {
			return
		}
		if _, dup := seen[hash]; dup {
			return
		}
		if name == "" {
			name = normSpace(sel.Text())
		}
		seen[hash] = struct{}{}
		magnets = append(magnets, models.Magnet{InfoHash: hash, URI: href, DisplayName: name})
	})

	return magnets
}

var magnetHashRe = regexp.MustCompile(`(?i)urn:btih:([0-9a-f]{40})`)

// ParseMagnet extracts the 40-hex info-hash (lowercased) and the dn display
// name from a magnet URI. ok is false for URIs without a valid btih hash.
func ParseMagnet(uri string) (infoHash, displayName string, ok bool) {
	if !strings.HasPrefix(strings.ToLower(uri), "magnet:") {
		return "", "", false
	}

	m := magnetHashRe.FindStringSubmatch(uri)
	if m == nil {
		return "", "", false
	}
	infoHash = strings.ToLower(m[1])

	if u, err := url.Parse(uri); err == nil {
		displayName = u.Query().Get("dn")
	}
	return infoHash, displayName, true
}

// Promotional boilerplate the forum injects around the actual synopsis.
var boilerplateWords = []string{"torrent", "download", "magnet", "click here", "join our", "telegram"}

// extractSynopsis picks the first paragraph sentence that reads like a plot
// line: at least 50 characters, not starting with a digit, free of
// promotional boilerplate. Best effort; an empty synopsis is fine.
func extractSynopsis(doc *goquery.Document) string {
	var synopsis string

	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := normSpace(sel.Text())
		if text == "" {
			return true
		}
		lower := strings.ToLower(text)
		for _, w := range boilerplateWords {
			if strings.Contains(lower, w) {
				return true
			}
		}
		for _, sentence := range splitSentences(text) {
			sentence = strings.TrimSpace(sentence)
			if len(sentence) < 50 {
				continue
			}
			if sentence[0] >= '0' && sentence[0] <= '9' {
				continue
			}
			synopsis = sentence
			return false
		}
		return true
	})

	return synopsis
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func (c *Client) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
