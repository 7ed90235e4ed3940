// Package cache is the file-backed store behind the addon: three
// independent key families (catalogs, content records, stream lists), one
// JSON file per key, committed batch-at-a-time with a temp-file + rename
// protocol so readers only ever observe complete generations.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"indiastreamz/models"
)

// Family names the three key spaces. Each maps to a subdirectory of the
// store root.
type Family string

const (
	FamilyCatalog Family = "catalog"
	FamilyMeta    Family = "meta"
	FamilyStream  Family = "stream"
)

var families = []Family{FamilyCatalog, FamilyMeta, FamilyStream}

// Batch is one scrape cycle's complete output, committed atomically.
type Batch struct {
	Catalogs map[string][]models.CatalogEntry // language -> ordered entries
	Metas    map[string]models.Meta           // content id -> record
	Streams  map[string][]models.Stream       // content or episode id -> ordered streams
}

type memEntry struct {
	value      any
	generation uint64
}

// Store owns all persisted addon state. The scrape orchestrator is the
// only writer; handler reads are concurrent and never block a write.
type Store struct {
	fs   afero.Fs
	root string

	mu          sync.RWMutex
	generations map[string]uint64 // family/key -> bumped on every committed write
	mem         map[string]memEntry
}

// NewStore opens (creating if needed) a store rooted at dir on the given
// filesystem. Pass afero.NewOsFs() in production.
func NewStore(fs afero.Fs, dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache directory not provided")
	}
	for _, fam := range families {
		if err := fs.MkdirAll(filepath.Join(dir, string(fam)), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir %s: %w", fam, err)
		}
	}
	return &Store{
		fs:          fs,
		root:        dir,
		generations: make(map[string]uint64),
		mem:         make(map[string]memEntry),
	}, nil
}

// keyFile maps a cache key to its file path. Episode stream ids contain
// colons, which are not portable filename characters.
func (s *Store) keyFile(fam Family, key string) string {
	name := strings.ReplaceAll(key, ":", "-") + ".json"
	return filepath.Join(s.root, string(fam), name)
}

func cacheKey(fam Family, key string) string {
	return string(fam) + "/" + key
}

type stagedWrite struct {
	fam   Family
	key   string
	tmp   string
	final string
}

// WriteBatch stages every entry of the batch to a temp file beside its
// final path and renames them into place only once all writes succeeded.
// On any staging failure every temp created so far is removed and no final
// file is touched: the previous cache generation stays fully servable.
// Empty catalogs are skipped so a partially-successful scrape never
// clobbers existing non-empty catalog data.
func (s *Store) WriteBatch(batch Batch) error {
	staged := make([]stagedWrite, 0, len(batch.Catalogs)+len(batch.Metas)+len(batch.Streams))

	cleanup := func() {
		for _, w := range staged {
			_ = s.fs.Remove(w.tmp)
		}
	}

	stage := func(fam Family, key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s/%s: %w", fam, key, err)
		}
		final := s.keyFile(fam, key)
		tmp := filepath.Join(filepath.Dir(final), "."+filepath.Base(final)+fmt.Sprintf(".tmp-%d", len(staged)))
		if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
			return fmt.Errorf("stage %s/%s: %w", fam, key, err)
		}
		staged = append(staged, stagedWrite{fam: fam, key: key, tmp: tmp, final: final})
		return nil
	}

	for lang, entries := range batch.Catalogs {
		if len(entries) == 0 {
			log.Printf("[cache] skipping empty catalog %q to preserve existing data", lang)
			continue
		}
		if err := stage(FamilyCatalog, lang, entries); err != nil {
			cleanup()
			return err
		}
	}
	for id, meta := range batch.Metas {
		if err := stage(FamilyMeta, id, meta); err != nil {
			cleanup()
			return err
		}
	}
	for id, streams := range batch.Streams {
		if err := stage(FamilyStream, id, streams); err != nil {
			cleanup()
			return err
		}
	}

	// Commit. Rename is atomic per file; a failure here still removes the
	// remaining temps so no .tmp artifact is left referenced.
	for i, w := range staged {
		if err := s.fs.Rename(w.tmp, w.final); err != nil {
			for _, rest := range staged[i:] {
				_ = s.fs.Remove(rest.tmp)
			}
			return fmt.Errorf("commit %s/%s: %w", w.fam, w.key, err)
		}
	}

	// Invalidate exactly the keys this batch touched.
	s.mu.Lock()
	for _, w := range staged {
		k := cacheKey(w.fam, w.key)
		s.generations[k]++
		delete(s.mem, k)
	}
	s.mu.Unlock()

	return nil
}

// WriteBatchReplace wipes all three families before committing the batch.
// Used only for explicit full rebuilds; scheduled scrapes use WriteBatch so
// items outside the scrape window are not lost.
func (s *Store) WriteBatchReplace(batch Batch) error {
	if err := s.Clear(); err != nil {
		return err
	}
	return s.WriteBatch(batch)
}

// read loads family/key through the in-memory layer. The memory entry is
// trusted only while its generation matches the store's counter for that
// key, so a committed batch invalidates exactly what it wrote. Absence is
// not an error: ok is false and err is nil.
func (s *Store) read(fam Family, key string, decode func([]byte) (any, error)) (any, bool, error) {
	k := cacheKey(fam, key)

	s.mu.RLock()
	gen := s.generations[k]
	if entry, ok := s.mem[k]; ok && entry.generation == gen {
		s.mu.RUnlock()
		return entry.value, true, nil
	}
	s.mu.RUnlock()

	data, err := afero.ReadFile(s.fs, s.keyFile(fam, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", k, err)
	}

	v, err := decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", k, err)
	}

	s.mu.Lock()
	s.mem[k] = memEntry{value: v, generation: gen}
	s.mu.Unlock()

	return v, true, nil
}

// ReadCatalog returns the ordered catalog for a language, ok=false when not
// cached.
func (s *Store) ReadCatalog(language string) ([]models.CatalogEntry, bool, error) {
	v, ok, err := s.read(FamilyCatalog, language, func(b []byte) (any, error) {
		var entries []models.CatalogEntry
		err := json.Unmarshal(b, &entries)
		return entries, err
	})
	if !ok || err != nil {
		return nil, false, err
	}
	return v.([]models.CatalogEntry), true, nil
}

// ReadMeta returns the full content record for an id, ok=false when not
// cached.
func (s *Store) ReadMeta(id string) (models.Meta, bool, error) {
	v, ok, err := s.read(FamilyMeta, id, func(b []byte) (any, error) {
		var m models.Meta
		err := json.Unmarshal(b, &m)
		return m, err
	})
	if !ok || err != nil {
		return models.Meta{}, false, err
	}
	return v.(models.Meta), true, nil
}

// ReadStreams returns the stream list for a content or episode id,
// ok=false when not cached.
func (s *Store) ReadStreams(id string) ([]models.Stream, bool, error) {
	v, ok, err := s.read(FamilyStream, id, func(b []byte) (any, error) {
		var streams []models.Stream
		err := json.Unmarshal(b, &streams)
		return streams, err
	})
	if !ok || err != nil {
		return nil, false, err
	}
	return v.([]models.Stream), true, nil
}

// Exists probes a key without decoding it.
func (s *Store) Exists(fam Family, key string) bool {
	ok, err := afero.Exists(s.fs, s.keyFile(fam, key))
	return err == nil && ok
}

// Clear wipes every cached file in all three families and resets the
// in-memory layer.
func (s *Store) Clear() error {
	for _, fam := range families {
		dir := filepath.Join(s.root, string(fam))
		if err := s.fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear %s: %w", fam, err)
		}
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("recreate %s: %w", fam, err)
		}
	}

	s.mu.Lock()
	s.mem = make(map[string]memEntry)
	for k := range s.generations {
		s.generations[k]++
	}
	s.mu.Unlock()

	return nil
}
