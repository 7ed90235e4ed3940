package identity

import (
	"strings"
	"testing"
)

func TestMovieIDDeterministic(t *testing.T) {
	a := MovieID("Movie Name", []string{"tamil"})
	b := MovieID("Movie Name", []string{"tamil"})
	if a != b {
		t.Errorf("same inputs produced different ids: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "tamil-movie-name-") {
		t.Errorf("unexpected id shape: %q", a)
	}
	suffix := a[strings.LastIndex(a, "-")+1:]
	if len(suffix) != 8 {
		t.Errorf("content hash suffix should be 8 hex chars, got %q", suffix)
	}
}

func TestMovieIDLanguageSensitivity(t *testing.T) {
	tamil := MovieID("Movie Name", []string{"tamil"})
	telugu := MovieID("Movie Name", []string{"telugu"})
	multi := MovieID("Movie Name", []string{"tamil", "telugu"})
	none := MovieID("Movie Name", nil)

	if tamil == telugu {
		t.Error("different language sets must yield different ids")
	}
	if !strings.HasPrefix(multi, "multi-") {
		t.Errorf("multi-language id should carry multi prefix: %q", multi)
	}
	if !strings.HasPrefix(none, "unknown-") {
		t.Errorf("empty language set should carry unknown prefix: %q", none)
	}
	if tamil == multi || telugu == multi {
		t.Error("multi-language id must differ from single-language ids")
	}
}

func TestSeriesIDSeasonSensitivity(t *testing.T) {
	s1 := SeriesID("Show Name", 1, []string{"tamil"})
	s2 := SeriesID("Show Name", 2, []string{"tamil"})
	if s1 == s2 {
		t.Error("different seasons must yield different ids")
	}
	if !strings.Contains(s1, "-s1-") {
		t.Errorf("season should be visible in the id: %q", s1)
	}
}

func TestEpisodeStreamID(t *testing.T) {
	sid := SeriesID("Show Name", 2, []string{"tamil"})
	got := EpisodeStreamID(sid, 2, 5)
	if got != sid+":2:5" {
		t.Errorf("EpisodeStreamID = %q", got)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Movie Name", "movie-name"},
		{"  Movie!! Name?  ", "movie-name"},
		{"Érdekes", "rdekes"},
		{"multi---dash", "multi-dash"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
