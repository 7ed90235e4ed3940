package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Source   SourceSettings   `json:"source"`
	Metadata MetadataSettings `json:"metadata"`
	Cache    CacheSettings    `json:"cache"`
	Addon    AddonSettings    `json:"addon"`
	Log      LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SourceSettings configures the forum scraper and its schedule.
type SourceSettings struct {
	BaseURL             string `json:"baseUrl"`
	ScrapeIntervalHours int    `json:"scrapeIntervalHours"`
	ItemDelayMs         int    `json:"itemDelayMs"`     // politeness delay between detail pages
	MaxItems            int    `json:"maxItems"`        // cap per cycle, 0 = unlimited
	FetchTimeoutSec     int    `json:"fetchTimeoutSec"` // per-request HTTP timeout
	Retries             int    `json:"retries"`
}

type MetadataSettings struct {
	TMDBAPIKey        string `json:"tmdbApiKey"`
	Language          string `json:"language"`
	SearchConcurrency int    `json:"searchConcurrency"`
	VariationDelayMs  int    `json:"variationDelayMs"`
}

type CacheSettings struct {
	Directory string `json:"directory"`
}

// AddonSettings is what the manifest endpoint advertises.
type AddonSettings struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 7010},
		Source: SourceSettings{
			BaseURL:             "",
			ScrapeIntervalHours: 4,
			ItemDelayMs:         2000,
			MaxItems:            0,
			FetchTimeoutSec:     20,
			Retries:             3,
		},
		Metadata: MetadataSettings{
			TMDBAPIKey:        "",
			Language:          "en",
			SearchConcurrency: 8,
			VariationDelayMs:  250,
		},
		Cache: CacheSettings{Directory: "cache"},
		Addon: AddonSettings{
			Name:        "IndiaStreamz",
			Description: "Tamil, Telugu and Hindi movies and series, refreshed from the source forum.",
		},
		Log: LogConfig{
			File:       "cache/logs/indiastreamz.log",
			Level:      "info",
			MaxSize:    50, // 50 MB per file
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures the parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
// Fields absent from an existing file are backfilled with defaults so old
// config files keep working across upgrades.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}

	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	s := DefaultSettings()
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	if s.Source.ScrapeIntervalHours <= 0 {
		s.Source.ScrapeIntervalHours = 4
	}
	if s.Source.ItemDelayMs < 0 {
		s.Source.ItemDelayMs = 0
	}
	if s.Source.FetchTimeoutSec <= 0 {
		s.Source.FetchTimeoutSec = 20
	}
	if s.Source.Retries <= 0 {
		s.Source.Retries = 3
	}
	if s.Metadata.SearchConcurrency <= 0 {
		s.Metadata.SearchConcurrency = 8
	}
	if s.Metadata.VariationDelayMs < 0 {
		s.Metadata.VariationDelayMs = 0
	}
	if strings.TrimSpace(s.Cache.Directory) == "" {
		s.Cache.Directory = "cache"
	}
	if strings.TrimSpace(s.Addon.Name) == "" {
		s.Addon.Name = "IndiaStreamz"
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
