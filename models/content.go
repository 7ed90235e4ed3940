package models

// Media types stored in the content cache. Movies and series share the
// same key space and are discriminated by Type.
const (
	TypeMovie  = "movie"
	TypeSeries = "series"
)

// Match confidence recorded by the enrichment pass.
const (
	MatchStrong = "strong"
	MatchWeak   = "weak"
)

// Meta is the full content record for one movie or series. The identity
// fields (ID, Type, ScrapedName, Languages, Season) are fixed at scrape
// time; enrichment only fills or replaces the optional presentation fields.
type Meta struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"` // movie | series
	Name        string    `json:"name"`
	CleanName   string    `json:"cleanName,omitempty"`
	ScrapedName string    `json:"scrapedName,omitempty"` // original forum title, kept for re-detection
	Languages   []string  `json:"languages"`
	Year        int       `json:"year,omitempty"`
	Poster      string    `json:"poster,omitempty"`
	Background  string    `json:"background,omitempty"`
	Description string    `json:"description,omitempty"`
	Genres      []string  `json:"genres,omitempty"`
	Cast        []string  `json:"cast,omitempty"`
	Director    []string  `json:"director,omitempty"`
	Writer      []string  `json:"writer,omitempty"`
	Runtime     string    `json:"runtime,omitempty"`
	ImdbRating  string    `json:"imdbRating,omitempty"`
	ReleaseInfo string    `json:"releaseInfo,omitempty"`
	Trailers    []Trailer `json:"trailers,omitempty"`

	// Series only.
	Season   int     `json:"season,omitempty"`
	Episodes []int   `json:"episodes,omitempty"`
	Videos   []Video `json:"videos,omitempty"`

	Qualities []string `json:"qualities,omitempty"`

	TmdbID          int64  `json:"tmdbId,omitempty"`
	MatchConfidence string `json:"matchConfidence,omitempty"` // strong | weak | "" (unenriched)
}

// Video is one episode entry on a series meta, addressable for streams via
// its composite ID "<seriesID>:<season>:<episode>".
type Video struct {
	ID      string `json:"id"`
	Season  int    `json:"season"`
	Episode int    `json:"episode"`
	Title   string `json:"title,omitempty"`
}

// Trailer is a YouTube trailer reference from the metadata provider.
type Trailer struct {
	Source string `json:"source"` // YouTube video key
	Type   string `json:"type"`   // Trailer | Teaser
}

// CatalogEntry is the lightweight per-language list projection of a Meta.
type CatalogEntry struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Poster      string   `json:"poster,omitempty"`
	Description string   `json:"description,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	ReleaseInfo string   `json:"releaseInfo,omitempty"`
}

// CatalogOf projects a full record down to its catalog row.
func CatalogOf(m Meta) CatalogEntry {
	return CatalogEntry{
		ID:          m.ID,
		Type:        m.Type,
		Name:        m.Name,
		Poster:      m.Poster,
		Description: m.Description,
		Genres:      m.Genres,
		ReleaseInfo: m.ReleaseInfo,
	}
}
