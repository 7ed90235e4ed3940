package scrapeloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"indiastreamz/models"
	"indiastreamz/services/cache"
	"indiastreamz/services/scraper"
	"indiastreamz/utils/classify"
	"indiastreamz/utils/identity"
)

// ErrScrapeRunning is returned when a cycle is requested while another one
// holds the single-flight guard.
var ErrScrapeRunning = errors.New("a scrape cycle is already running")

// State of the orchestrator, exposed on the status endpoint.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

// Status is a point-in-time snapshot of the last or current cycle.
type Status struct {
	State        State      `json:"state"`
	RunID        string     `json:"runId,omitempty"`
	Full         bool       `json:"full,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	ItemsScraped int        `json:"itemsScraped"`
	ItemsSkipped int        `json:"itemsSkipped"`
	ItemsFailed  int        `json:"itemsFailed"`
	LastError    string     `json:"lastError,omitempty"`
}

// Source lists forum topics and fetches their detail pages.
type Source interface {
	Listings(ctx context.Context) ([]scraper.Listing, error)
	Details(ctx context.Context, pageURL, fallbackTitle string) (*models.Draft, error)
}

var _ Source = (*scraper.Client)(nil)

// Enricher fills provider metadata into scraped records in place.
type Enricher interface {
	EnrichBatch(ctx context.Context, metas []*models.Meta)
}

// Catalogs whose presence at startup means a previous scrape already
// populated the cache, so the scheduler can wait for its first tick.
var sentinelLanguages = []string{"tamil", "telugu", "hindi"}

// Options configures the orchestrator and its scheduler.
type Options struct {
	Interval  time.Duration // time between scheduled cycles
	ItemDelay time.Duration // politeness delay between detail fetches
	MaxItems  int           // cap on listings per cycle, 0 = unlimited
}

// Service runs the scrape cycle: listings, detail fetch, classification,
// enrichment, atomic cache commit. Exactly one cycle runs at a time.
type Service struct {
	source   Source
	enricher Enricher
	store    *cache.Store
	opts     Options

	statusMu sync.RWMutex
	status   Status

	// Scheduler runtime state
	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewService(source Source, enricher Enricher, store *cache.Store, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = 4 * time.Hour
	}
	return &Service{
		source:   source,
		enricher: enricher,
		store:    store,
		opts:     opts,
		status:   Status{State: StateIdle},
	}
}

// Status returns a copy of the current orchestrator status.
func (s *Service) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Run executes one scrape cycle. When full is set the cache is fully
// replaced instead of incrementally updated. Returns ErrScrapeRunning if a
// cycle is already in flight.
func (s *Service) Run(ctx context.Context, full bool) error {
	if err := s.begin(full); err != nil {
		return err
	}

	stats, err := s.cycle(ctx, full)
	s.finish(stats, err)
	return err
}

// TriggerAsync starts a cycle in the background, returning immediately.
// The returned status reflects the freshly started run. ErrScrapeRunning
// when a cycle is already in flight.
func (s *Service) TriggerAsync(full bool) (Status, error) {
	if err := s.begin(full); err != nil {
		return s.Status(), err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		stats, err := s.cycle(context.Background(), full)
		s.finish(stats, err)
	}()
	return s.Status(), nil
}

func (s *Service) begin(full bool) error {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	if s.status.State == StateRunning {
		return ErrScrapeRunning
	}

	now := time.Now().UTC()
	s.status = Status{
		State:     StateRunning,
		RunID:     uuid.NewString(),
		Full:      full,
		StartedAt: &now,
	}
	log.Printf("[scrapeloop] starting cycle %s (full=%v)", s.status.RunID, full)
	return nil
}

func (s *Service) finish(stats cycleStats, err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	now := time.Now().UTC()
	s.status.FinishedAt = &now
	s.status.ItemsScraped = stats.scraped
	s.status.ItemsSkipped = stats.skipped
	s.status.ItemsFailed = stats.failed

	if err != nil {
		s.status.State = StateFailed
		s.status.LastError = err.Error()
		log.Printf("[scrapeloop] cycle %s failed: %v", s.status.RunID, err)
		return
	}
	s.status.State = StateSuccess
	log.Printf("[scrapeloop] cycle %s done: %d scraped, %d skipped, %d failed",
		s.status.RunID, stats.scraped, stats.skipped, stats.failed)
}

type cycleStats struct {
	scraped, skipped, failed int
}

// record pairs a content item with its streams until commit time.
type record struct {
	meta    *models.Meta
	streams []models.Stream
}

func (s *Service) cycle(ctx context.Context, full bool) (cycleStats, error) {
	var stats cycleStats

	listings, err := s.source.Listings(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch listings: %w", err)
	}
	if s.opts.MaxItems > 0 && len(listings) > s.opts.MaxItems {
		listings = listings[:s.opts.MaxItems]
	}

	var records []*record
	byID := make(map[string]*record)

	for i, listing := range listings {
		if i > 0 && s.opts.ItemDelay > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(s.opts.ItemDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		// Cheap skip check from the listing title alone, without fetching
		// the detail page. A full run refreshes everything.
		if !full {
			if id := identityOf(listing.Title); id != "" && s.store.Exists(cache.FamilyMeta, id) {
				stats.skipped++
				continue
			}
		}

		draft, err := s.source.Details(ctx, listing.URL, listing.Title)
		if err != nil {
			stats.failed++
			log.Printf("[scrapeloop] detail fetch failed for %q: %v", listing.Title, err)
			continue
		}
		if draft == nil {
			// Junk topic or no magnets, nothing to cache.
			stats.skipped++
			continue
		}

		rec := buildRecord(draft)

		// The pre-fetch check derives languages from the listing title
		// alone; a language that only appears in magnet display names
		// shifts the record id away from the listing-derived one. Re-check
		// with the real id so such items don't get rewritten every cycle.
		if !full && s.store.Exists(cache.FamilyMeta, rec.meta.ID) {
			stats.skipped++
			continue
		}

		if existing, ok := byID[rec.meta.ID]; ok {
			// Same content posted under multiple topics, usually different
			// quality releases. Fold the streams together.
			existing.streams = mergeStreams(existing.streams, rec.streams)
			existing.meta.Qualities = mergeQualities(existing.meta.Qualities, rec.meta.Qualities)
			stats.scraped++
			continue
		}
		byID[rec.meta.ID] = rec
		records = append(records, rec)
		stats.scraped++
	}

	if len(records) == 0 {
		log.Printf("[scrapeloop] no new content this cycle")
		if full {
			return stats, errors.New("full refresh scraped no content, keeping existing cache")
		}
		return stats, nil
	}

	metas := make([]*models.Meta, len(records))
	for i, rec := range records {
		metas[i] = rec.meta
	}
	s.enricher.EnrichBatch(ctx, metas)

	batch := assemble(records)
	if full {
		return stats, s.store.WriteBatchReplace(batch)
	}
	if err := s.mergeCatalogs(batch); err != nil {
		return stats, err
	}
	return stats, s.store.WriteBatch(batch)
}

// mergeCatalogs folds the previously cached catalog for each touched
// language into the batch, new entries first, deduplicated by id. Without
// this an incremental cycle would replace a language catalog with only the
// cycle's new items and every skipped-as-cached entry would drop out of
// browsing.
func (s *Service) mergeCatalogs(batch cache.Batch) error {
	for lang, entries := range batch.Catalogs {
		existing, ok, err := s.store.ReadCatalog(lang)
		if err != nil {
			return fmt.Errorf("read catalog %s: %w", lang, err)
		}
		if !ok {
			continue
		}
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			seen[e.ID] = true
		}
		for _, e := range existing {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			entries = append(entries, e)
		}
		batch.Catalogs[lang] = entries
	}
	return nil
}

// identityOf derives the deterministic content id from a raw forum title.
// Empty when the title cleans down to nothing.
func identityOf(rawTitle string) string {
	clean := classify.CleanTitle(rawTitle)
	if clean == "" {
		return ""
	}
	languages := classify.Languages(rawTitle)
	if series := classify.Series(rawTitle); series.IsSeries {
		return identity.SeriesID(clean, series.Season, languages)
	}
	return identity.MovieID(clean, languages)
}

// buildRecord turns a scraped draft into a full content record with its
// streams, before enrichment.
func buildRecord(draft *models.Draft) *record {
	clean := classify.CleanTitle(draft.Title)
	if clean == "" {
		clean = draft.Title
	}
	languages := classify.SortLanguages(draft.Languages)

	m := &models.Meta{
		Type:        models.TypeMovie,
		Name:        clean,
		CleanName:   clean,
		ScrapedName: draft.Title,
		Languages:   languages,
		Year:        draft.Year,
		Description: draft.Synopsis,
	}
	if draft.Year > 0 {
		m.ReleaseInfo = fmt.Sprintf("%d", draft.Year)
	}

	if draft.IsSeries {
		m.Type = models.TypeSeries
		m.Season = draft.Season
		m.Episodes = draft.Episodes
		m.ID = identity.SeriesID(clean, draft.Season, languages)
		for _, ep := range draft.Episodes {
			m.Videos = append(m.Videos, models.Video{
				ID:      identity.EpisodeStreamID(m.ID, draft.Season, ep),
				Season:  draft.Season,
				Episode: ep,
				Title:   fmt.Sprintf("Episode %d", ep),
			})
		}
	} else {
		m.ID = identity.MovieID(clean, languages)
	}

	streams := make([]models.Stream, 0, len(draft.Magnets))
	seenQuality := make(map[string]bool)
	for _, magnet := range draft.Magnets {
		label := magnet.DisplayName
		if label == "" {
			label = draft.Title
		}
		q := classify.Quality(label)
		if q.Resolution != "" && !seenQuality[q.Resolution] {
			seenQuality[q.Resolution] = true
			m.Qualities = append(m.Qualities, q.Resolution)
		}

		name := classify.StreamLabel(q)
		if name == "" {
			name = "IndiaStreamz"
		}
		streams = append(streams, models.Stream{
			Name:        name,
			InfoHash:    magnet.InfoHash,
			ExternalURL: magnet.URI,
			BehaviorHints: &models.BehaviorHints{
				BingeGroup: "indiastreamz-" + magnet.InfoHash[:8],
			},
		})
	}

	return &record{meta: m, streams: streams}
}

// assemble lays one cycle's records out as a cache batch: per-language
// catalogs in scrape order (the forum lists newest first), one meta per id,
// and stream lists under the content id plus every episode id.
func assemble(records []*record) cache.Batch {
	batch := cache.Batch{
		Catalogs: make(map[string][]models.CatalogEntry),
		Metas:    make(map[string]models.Meta),
		Streams:  make(map[string][]models.Stream),
	}

	for _, rec := range records {
		m := rec.meta
		batch.Metas[m.ID] = *m
		batch.Streams[m.ID] = rec.streams
		for _, v := range m.Videos {
			batch.Streams[v.ID] = rec.streams
		}

		languages := m.Languages
		if len(languages) == 0 {
			languages = []string{"unknown"}
		}
		for _, lang := range languages {
			batch.Catalogs[lang] = append(batch.Catalogs[lang], models.CatalogOf(*m))
		}
	}

	return batch
}

func mergeStreams(existing, extra []models.Stream) []models.Stream {
	seen := make(map[string]bool, len(existing))
	for _, st := range existing {
		seen[st.InfoHash] = true
	}
	for _, st := range extra {
		if st.InfoHash != "" && seen[st.InfoHash] {
			continue
		}
		seen[st.InfoHash] = true
		existing = append(existing, st)
	}
	return existing
}

func mergeQualities(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, q := range existing {
		seen[q] = true
	}
	for _, q := range extra {
		if !seen[q] {
			seen[q] = true
			existing = append(existing, q)
		}
	}
	return existing
}

// Start launches the background scheduler. An immediate cycle runs when
// none of the sentinel language catalogs exist yet, otherwise the first
// cycle waits for the ticker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.schedulerLoop()

	log.Printf("[scrapeloop] scheduler started (interval %s)", s.opts.Interval)
	return nil
}

// Stop gracefully stops the scheduler, waiting for an in-flight cycle up
// to the given context's deadline.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[scrapeloop] scheduler stopped gracefully")
	case <-ctx.Done():
		log.Println("[scrapeloop] scheduler stopped (timeout)")
	}

	s.running = false
	return nil
}

func (s *Service) schedulerLoop() {
	defer s.wg.Done()

	if s.needsBootstrap() {
		log.Println("[scrapeloop] cache empty, running startup scrape")
		s.runScheduled()
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runScheduled()
		}
	}
}

// needsBootstrap reports whether no sentinel language catalog exists yet.
func (s *Service) needsBootstrap() bool {
	for _, lang := range sentinelLanguages {
		if s.store.Exists(cache.FamilyCatalog, lang) {
			return false
		}
	}
	return true
}

func (s *Service) runScheduled() {
	err := s.Run(s.ctx, false)
	switch {
	case errors.Is(err, ErrScrapeRunning):
		log.Println("[scrapeloop] previous cycle still running, skipping scheduled cycle")
	case errors.Is(err, context.Canceled):
	case err != nil:
		// Run already logged the details.
	}
}
