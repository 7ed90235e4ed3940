package scrapeloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"indiastreamz/models"
	"indiastreamz/services/cache"
	"indiastreamz/services/scraper"
)

type fakeSource struct {
	mu          sync.Mutex
	listings    []scraper.Listing
	listingsErr error
	drafts      map[string]*models.Draft // keyed by page URL
	detailCalls int
}

func (f *fakeSource) Listings(ctx context.Context) ([]scraper.Listing, error) {
	return f.listings, f.listingsErr
}

func (f *fakeSource) Details(ctx context.Context, pageURL, fallbackTitle string) (*models.Draft, error) {
	f.mu.Lock()
	f.detailCalls++
	f.mu.Unlock()
	d, ok := f.drafts[pageURL]
	if !ok {
		return nil, fmt.Errorf("no draft for %s", pageURL)
	}
	return d, nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls
}

type fakeEnricher struct {
	mu         sync.Mutex
	batchSizes []int
}

func (f *fakeEnricher) EnrichBatch(ctx context.Context, metas []*models.Meta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchSizes = append(f.batchSizes, len(metas))
}

const testHash = "abcdef0123456789abcdef0123456789abcdef01"

func movieDraft() *models.Draft {
	return &models.Draft{
		Title:     "Jailer (2023) Tamil HDRip",
		PageURL:   "http://forum.test/topic/1-jailer",
		Synopsis:  "A retired jailer takes on a smuggling ring.",
		Languages: []string{"tamil"},
		Year:      2023,
		Magnets: []models.Magnet{
			{InfoHash: testHash, URI: "magnet:?xt=urn:btih:" + testHash, DisplayName: "Jailer.2023.1080p.WEB-DL.x264"},
		},
	}
}

func newTestService(t *testing.T, source Source, enricher Enricher) (*Service, *cache.Store) {
	t.Helper()
	store, err := cache.NewStore(afero.NewMemMapFs(), "/cache")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewService(source, enricher, store, Options{Interval: time.Hour}), store
}

func TestRunPopulatesCache(t *testing.T) {
	draft := movieDraft()
	source := &fakeSource{
		listings: []scraper.Listing{{Title: draft.Title, URL: draft.PageURL, TopicID: "1"}},
		drafts:   map[string]*models.Draft{draft.PageURL: draft},
	}
	enricher := &fakeEnricher{}
	svc, store := newTestService(t, source, enricher)

	if got := svc.Status().State; got != StateIdle {
		t.Fatalf("initial state = %q, want %q", got, StateIdle)
	}

	if err := svc.Run(context.Background(), false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	status := svc.Status()
	if status.State != StateSuccess {
		t.Fatalf("state = %q, want %q (lastError=%q)", status.State, StateSuccess, status.LastError)
	}
	if status.ItemsScraped != 1 || status.ItemsSkipped != 0 || status.ItemsFailed != 0 {
		t.Errorf("stats = %d/%d/%d, want 1/0/0", status.ItemsScraped, status.ItemsSkipped, status.ItemsFailed)
	}
	if status.RunID == "" || status.StartedAt == nil || status.FinishedAt == nil {
		t.Errorf("run bookkeeping incomplete: %+v", status)
	}

	catalog, ok, err := store.ReadCatalog("tamil")
	if err != nil || !ok {
		t.Fatalf("ReadCatalog(tamil) = ok=%v err=%v", ok, err)
	}
	if len(catalog) != 1 || catalog[0].Name != "Jailer" {
		t.Fatalf("catalog = %+v, want one entry named Jailer", catalog)
	}

	meta, ok, err := store.ReadMeta(catalog[0].ID)
	if err != nil || !ok {
		t.Fatalf("ReadMeta(%s) = ok=%v err=%v", catalog[0].ID, ok, err)
	}
	if meta.Type != models.TypeMovie || meta.ScrapedName != draft.Title {
		t.Errorf("meta = %+v", meta)
	}
	if len(meta.Qualities) != 1 || meta.Qualities[0] != "1080p" {
		t.Errorf("Qualities = %v, want [1080p]", meta.Qualities)
	}

	streams, ok, err := store.ReadStreams(catalog[0].ID)
	if err != nil || !ok || len(streams) != 1 {
		t.Fatalf("ReadStreams = %v ok=%v err=%v", streams, ok, err)
	}
	if streams[0].InfoHash != testHash {
		t.Errorf("InfoHash = %q", streams[0].InfoHash)
	}
	if want := "magnet:?xt=urn:btih:" + testHash; streams[0].ExternalURL != want {
		t.Errorf("ExternalURL = %q, want %q", streams[0].ExternalURL, want)
	}
	if streams[0].BehaviorHints == nil || streams[0].BehaviorHints.BingeGroup != "indiastreamz-abcdef01" {
		t.Errorf("BehaviorHints = %+v", streams[0].BehaviorHints)
	}

	if len(enricher.batchSizes) != 1 || enricher.batchSizes[0] != 1 {
		t.Errorf("enrichment batches = %v, want [1]", enricher.batchSizes)
	}
}

// The second cycle over an unchanged forum recognizes every listing from
// its title alone and fetches no detail pages.
func TestSecondCycleSkipsCachedContent(t *testing.T) {
	draft := movieDraft()
	source := &fakeSource{
		listings: []scraper.Listing{{Title: draft.Title, URL: draft.PageURL, TopicID: "1"}},
		drafts:   map[string]*models.Draft{draft.PageURL: draft},
	}
	svc, _ := newTestService(t, source, &fakeEnricher{})

	if err := svc.Run(context.Background(), false); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := svc.Run(context.Background(), false); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if got := source.calls(); got != 1 {
		t.Errorf("detail fetches = %d, want 1 (second cycle should skip)", got)
	}
	status := svc.Status()
	if status.State != StateSuccess || status.ItemsSkipped != 1 || status.ItemsScraped != 0 {
		t.Errorf("second cycle status = %+v", status)
	}
}

// An incremental cycle rebuilds each touched catalog from its new records
// plus everything already cached, so skipped items stay browsable.
func TestIncrementalCycleKeepsCatalogEntries(t *testing.T) {
	jailer := movieDraft()
	leo := &models.Draft{
		Title:     "Leo (2023) Tamil HDRip",
		PageURL:   "http://forum.test/topic/3-leo",
		Languages: []string{"tamil"},
		Year:      2023,
		Magnets: []models.Magnet{
			{InfoHash: "0123456789abcdef0123456789abcdef01234567", DisplayName: "Leo.2023.1080p.WEB-DL"},
		},
	}
	source := &fakeSource{
		listings: []scraper.Listing{{Title: jailer.Title, URL: jailer.PageURL, TopicID: "1"}},
		drafts:   map[string]*models.Draft{jailer.PageURL: jailer, leo.PageURL: leo},
	}
	svc, store := newTestService(t, source, &fakeEnricher{})

	if err := svc.Run(context.Background(), false); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	source.listings = []scraper.Listing{
		{Title: leo.Title, URL: leo.PageURL, TopicID: "3"},
		{Title: jailer.Title, URL: jailer.PageURL, TopicID: "1"},
	}
	if err := svc.Run(context.Background(), false); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	catalog, ok, err := store.ReadCatalog("tamil")
	if err != nil || !ok {
		t.Fatalf("ReadCatalog(tamil) = ok=%v err=%v", ok, err)
	}
	if len(catalog) != 2 {
		t.Fatalf("catalog has %d entries after incremental cycle, want 2: %+v", len(catalog), catalog)
	}
	if catalog[0].Name != "Leo" || catalog[1].Name != "Jailer" {
		t.Errorf("catalog order = [%s, %s], want new entry first", catalog[0].Name, catalog[1].Name)
	}
}

// Languages that only show up in magnet display names make the listing
// title derive a different id than the draft. The record-level check still
// recognizes the cached item, so the cycle ends with no writes.
func TestMagnetOnlyLanguageSkipsRewrite(t *testing.T) {
	draft := &models.Draft{
		Title:     "Kanguva (2024) HDRip",
		PageURL:   "http://forum.test/topic/4-kanguva",
		Languages: []string{"tamil"}, // found in magnet names, absent from the title
		Year:      2024,
		Magnets: []models.Magnet{
			{InfoHash: testHash, DisplayName: "Kanguva.2024.Tamil.1080p.WEB-DL"},
		},
	}
	source := &fakeSource{
		listings: []scraper.Listing{{Title: draft.Title, URL: draft.PageURL, TopicID: "4"}},
		drafts:   map[string]*models.Draft{draft.PageURL: draft},
	}
	svc, store := newTestService(t, source, &fakeEnricher{})

	if err := svc.Run(context.Background(), false); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := svc.Run(context.Background(), false); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	// The title-only pre-check cannot match, so the detail page is fetched
	// again, but the item is then skipped instead of rewritten.
	if got := source.calls(); got != 2 {
		t.Errorf("detail fetches = %d, want 2", got)
	}
	status := svc.Status()
	if status.State != StateSuccess || status.ItemsSkipped != 1 || status.ItemsScraped != 0 {
		t.Errorf("second cycle status = %+v, want 1 skipped, 0 scraped", status)
	}
	catalog, ok, _ := store.ReadCatalog("tamil")
	if !ok || len(catalog) != 1 {
		t.Errorf("catalog = %+v, want the single cached entry", catalog)
	}
}

func TestRunSeriesWritesEpisodeStreams(t *testing.T) {
	draft := &models.Draft{
		Title:     "Heeramandi (2024) Hindi S01 EP(01-02) WEB-DL",
		PageURL:   "http://forum.test/topic/2-heeramandi",
		Languages: []string{"hindi"},
		Year:      2024,
		IsSeries:  true,
		Season:    1,
		Episodes:  []int{1, 2},
		Magnets: []models.Magnet{
			{InfoHash: testHash, DisplayName: "Heeramandi.S01.1080p.WEB-DL"},
		},
	}
	source := &fakeSource{
		listings: []scraper.Listing{{Title: draft.Title, URL: draft.PageURL, TopicID: "2"}},
		drafts:   map[string]*models.Draft{draft.PageURL: draft},
	}
	svc, store := newTestService(t, source, &fakeEnricher{})

	if err := svc.Run(context.Background(), false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	catalog, ok, _ := store.ReadCatalog("hindi")
	if !ok || len(catalog) != 1 {
		t.Fatalf("catalog = %+v", catalog)
	}
	seriesID := catalog[0].ID

	meta, ok, _ := store.ReadMeta(seriesID)
	if !ok || meta.Type != models.TypeSeries || len(meta.Videos) != 2 {
		t.Fatalf("meta = %+v", meta)
	}

	for _, id := range []string{seriesID, seriesID + ":1:1", seriesID + ":1:2"} {
		streams, ok, err := store.ReadStreams(id)
		if err != nil || !ok || len(streams) != 1 {
			t.Errorf("ReadStreams(%s) = %v ok=%v err=%v", id, streams, ok, err)
		}
	}
}

func TestRunListingsFailure(t *testing.T) {
	source := &fakeSource{listingsErr: errors.New("forum unreachable")}
	svc, store := newTestService(t, source, &fakeEnricher{})

	err := svc.Run(context.Background(), false)
	if err == nil {
		t.Fatal("Run succeeded despite listings failure")
	}

	status := svc.Status()
	if status.State != StateFailed || status.LastError == "" {
		t.Errorf("status = %+v, want failed with lastError", status)
	}
	if store.Exists(cache.FamilyCatalog, "tamil") {
		t.Error("cache written despite failed cycle")
	}
}

// A single bad item degrades to a skip, not a failed cycle.
func TestRunSingleItemFailure(t *testing.T) {
	draft := movieDraft()
	source := &fakeSource{
		listings: []scraper.Listing{
			{Title: "Broken Topic Xyzzy", URL: "http://forum.test/topic/9-broken", TopicID: "9"},
			{Title: draft.Title, URL: draft.PageURL, TopicID: "1"},
		},
		drafts: map[string]*models.Draft{draft.PageURL: draft},
	}
	svc, store := newTestService(t, source, &fakeEnricher{})

	if err := svc.Run(context.Background(), false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	status := svc.Status()
	if status.ItemsFailed != 1 || status.ItemsScraped != 1 {
		t.Errorf("stats = %+v", status)
	}
	if _, ok, _ := store.ReadCatalog("tamil"); !ok {
		t.Error("surviving item was not cached")
	}
}

type blockingSource struct {
	inner   *fakeSource
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSource) Listings(ctx context.Context) ([]scraper.Listing, error) {
	return b.inner.Listings(ctx)
}

func (b *blockingSource) Details(ctx context.Context, pageURL, fallbackTitle string) (*models.Draft, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.inner.Details(ctx, pageURL, fallbackTitle)
}

func TestRunSingleFlight(t *testing.T) {
	draft := movieDraft()
	source := &blockingSource{
		inner: &fakeSource{
			listings: []scraper.Listing{{Title: draft.Title, URL: draft.PageURL, TopicID: "1"}},
			drafts:   map[string]*models.Draft{draft.PageURL: draft},
		},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc, _ := newTestService(t, source, &fakeEnricher{})

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background(), false) }()

	select {
	case <-source.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never started")
	}

	if err := svc.Run(context.Background(), true); !errors.Is(err, ErrScrapeRunning) {
		t.Errorf("concurrent Run = %v, want ErrScrapeRunning", err)
	}
	if got := svc.Status().State; got != StateRunning {
		t.Errorf("state = %q, want %q", got, StateRunning)
	}

	close(source.release)
	if err := <-done; err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if got := svc.Status().State; got != StateSuccess {
		t.Errorf("state after completion = %q, want %q", got, StateSuccess)
	}
}

func TestFullRefreshWithNoContentKeepsCache(t *testing.T) {
	draft := movieDraft()
	source := &fakeSource{
		listings: []scraper.Listing{{Title: draft.Title, URL: draft.PageURL, TopicID: "1"}},
		drafts:   map[string]*models.Draft{draft.PageURL: draft},
	}
	svc, store := newTestService(t, source, &fakeEnricher{})

	if err := svc.Run(context.Background(), false); err != nil {
		t.Fatalf("seed Run: %v", err)
	}

	source.listings = nil
	if err := svc.Run(context.Background(), true); err == nil {
		t.Fatal("full refresh with no content should fail rather than clear the cache")
	}
	if _, ok, _ := store.ReadCatalog("tamil"); !ok {
		t.Error("existing cache lost after aborted full refresh")
	}
}
