package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"indiastreamz/utils/classify"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func htmlResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(rt roundTripFunc) *Client {
	c := New("https://forum.example", &http.Client{Transport: rt}, 3)
	c.retryDelay = time.Millisecond
	return c
}

const homepageHTML = `<html><body>
<a href="/index.php?/forums/topic/100001-movie-one-2024-tamil-1080p/">Movie One (2024) Tamil 1080p</a>
<a href="/forums/topic/100001-movie-one-2024-tamil-1080p/?tab=comments">Movie One duplicate link</a>
<a href="/forums/topic/100002-show-two-2024-s01-ep01-06-telugu/">Show Two (2024) S01 EP(01-06) Telugu</a>
<a href="/forums/topic/100003-0">deleted topic</a>
<a href="/forums/forum/movies/">forum index</a>
<a href="/forums/topic/100004-movie-three/"></a>
</body></html>`

func TestListings(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return htmlResponse(homepageHTML), nil
	})

	listings, err := client.Listings(context.Background())
	if err != nil {
		t.Fatalf("Listings: %v", err)
	}

	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d: %+v", len(listings), listings)
	}
	if listings[0].TopicID != "100001" || listings[1].TopicID != "100002" {
		t.Errorf("homepage order not preserved: %+v", listings)
	}
	if listings[0].Title != "Movie One (2024) Tamil 1080p" {
		t.Errorf("unexpected title: %q", listings[0].Title)
	}
	if !strings.HasPrefix(listings[0].URL, "https://forum.example/") {
		t.Errorf("relative link not resolved: %q", listings[0].URL)
	}
}

const detailHTML = `<html><body>
<h1>Movie One (2024) Tamil 1080p HDRip</h1>
<p>Download via torrent below and join our telegram.</p>
<p>12 great reasons to watch this one, none of which start a synopsis.</p>
<p>A retired police officer is pulled back into service when an old enemy resurfaces in the city. What follows is a long night.</p>
<a href="magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01&dn=Movie.One.2024.1080p.WEB-DL.x264">1080p</a>
<a href="magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01&dn=Movie.One.2024.1080p.WEB-DL.x264">duplicate</a>
<a href="magnet:?xt=urn:btih:0123456789ABCDEF0123456789ABCDEF01234567&dn=Movie.One.2024.720p.HDRip.700MB">720p</a>
</body></html>`

func TestDetails(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return htmlResponse(detailHTML), nil
	})

	draft, err := client.Details(context.Background(), "https://forum.example/forums/topic/100001-movie-one/", "fallback")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if draft == nil {
		t.Fatal("expected a draft")
	}

	if draft.Title != "Movie One (2024) Tamil 1080p HDRip" {
		t.Errorf("title: %q", draft.Title)
	}
	if len(draft.Magnets) != 2 {
		t.Fatalf("expected 2 deduped magnets, got %d", len(draft.Magnets))
	}
	if draft.Magnets[0].InfoHash != "abcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("info hash not lowercased: %q", draft.Magnets[0].InfoHash)
	}
	if got := classify.Quality(draft.Magnets[0].DisplayName).Resolution; got != "1080p" {
		t.Errorf("magnet display name should classify as 1080p, got %q", got)
	}
	if len(draft.Languages) != 1 || draft.Languages[0] != "tamil" {
		t.Errorf("languages: %v", draft.Languages)
	}
	if draft.Year != 2024 {
		t.Errorf("year: %d", draft.Year)
	}
	if draft.IsSeries {
		t.Error("movie drafted as series")
	}
	if !strings.HasPrefix(draft.Synopsis, "A retired police officer") {
		t.Errorf("synopsis: %q", draft.Synopsis)
	}
}

func TestDetailsSkipsUncacheable(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{
			name: "no magnets",
			html: `<html><body><h1>Movie One (2024) Tamil</h1><p>coming soon</p></body></html>`,
		},
		{
			name: "trailer topic",
			html: `<html><body><h1>Movie One - Official Trailer</h1>
<a href="magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01&dn=x">m</a></body></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(func(req *http.Request) (*http.Response, error) {
				return htmlResponse(tt.html), nil
			})
			draft, err := client.Details(context.Background(), "https://forum.example/t", "")
			if err != nil {
				t.Fatalf("Details: %v", err)
			}
			if draft != nil {
				t.Errorf("expected nil draft, got %+v", draft)
			}
		})
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	calls := 0
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return htmlResponse(homepageHTML), nil
	})

	if _, err := client.Listings(context.Background()); err != nil {
		t.Fatalf("Listings should succeed on third attempt: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestFetchGivesUpAfterBoundedRetries(t *testing.T) {
	calls := 0
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("connection reset")
	})

	if _, err := client.Listings(context.Background()); err == nil {
		t.Fatal("Listings should fail after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestParseMagnet(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		wantHash string
		wantName string
		wantOK   bool
	}{
		{
			name:     "uppercase hash with display name",
			uri:      "magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01&dn=Movie.2024.1080p",
			wantHash: "abcdef0123456789abcdef0123456789abcdef01",
			wantName: "Movie.2024.1080p",
			wantOK:   true,
		},
		{
			name:   "not a magnet",
			uri:    "https://example.com/file.torrent",
			wantOK: false,
		},
		{
			name:   "short hash",
			uri:    "magnet:?xt=urn:btih:ABCDEF",
			wantOK: false,
		},
		{
			name:     "no display name",
			uri:      "magnet:?xt=urn:btih:abcdef0123456789abcdef0123456789abcdef01",
			wantHash: "abcdef0123456789abcdef0123456789abcdef01",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, name, ok := ParseMagnet(tt.uri)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if hash != tt.wantHash {
				t.Errorf("hash = %q, want %q", hash, tt.wantHash)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
		})
	}
}
