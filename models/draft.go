package models

// Magnet is one magnet link found on a detail page, with the display name
// the forum attached to it.
type Magnet struct {
	InfoHash    string `json:"infoHash"`
	URI         string `json:"uri"`
	DisplayName string `json:"displayName"`
}

// Draft is a scraped-but-unenriched content item. One draft per forum topic
// that survived classification; enrichment turns drafts into cached Metas.
type Draft struct {
	Title     string   `json:"title"` // canonical title from the detail page
	PageURL   string   `json:"pageUrl"`
	Synopsis  string   `json:"synopsis,omitempty"`
	Languages []string `json:"languages"`
	Year      int      `json:"year,omitempty"`

	IsSeries bool  `json:"isSeries"`
	Season   int   `json:"season,omitempty"`
	Episodes []int `json:"episodes,omitempty"`

	Magnets []Magnet `json:"magnets"`
}
