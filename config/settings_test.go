package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	s, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Server.Port != 7010 || s.Source.ScrapeIntervalHours != 4 {
		t.Errorf("defaults = %+v", s)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("settings file not created: %v", err)
	}
}

func TestLoadBackfillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"server":{"host":"127.0.0.1","port":9000},"source":{"baseUrl":"http://forum.test"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Server.Port != 9000 || s.Source.BaseURL != "http://forum.test" {
		t.Errorf("explicit fields lost: %+v", s)
	}
	if s.Source.ScrapeIntervalHours != 4 || s.Source.Retries != 3 {
		t.Errorf("source backfill missing: %+v", s.Source)
	}
	if s.Metadata.SearchConcurrency != 8 || s.Cache.Directory != "cache" {
		t.Errorf("backfill missing: %+v", s)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	m := NewManager(path)

	s := DefaultSettings()
	s.Metadata.TMDBAPIKey = "secret"
	s.Source.MaxItems = 40
	if err := m.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Metadata.TMDBAPIKey != "secret" || got.Source.MaxItems != 40 {
		t.Errorf("round trip lost fields: %+v", got)
	}
}
