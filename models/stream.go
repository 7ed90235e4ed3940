package models

// Stream is one playable source extracted from a magnet link on a forum
// detail page.
type Stream struct {
	Name          string         `json:"name,omitempty"`
	InfoHash      string         `json:"infoHash,omitempty"` // 40-char lowercase hex, required for desktop playback
	ExternalURL   string         `json:"externalUrl,omitempty"`
	BehaviorHints *BehaviorHints `json:"behaviorHints,omitempty"`
}

// BehaviorHints is the opaque hint bag passed through to clients.
type BehaviorHints struct {
	BingeGroup string `json:"bingeGroup,omitempty"`
}

// StreamResponse is the wire shape of a stream endpoint response.
type StreamResponse struct {
	Streams []Stream `json:"streams"`
}

// CatalogResponse is the wire shape of a catalog endpoint response.
type CatalogResponse struct {
	Metas []CatalogEntry `json:"metas"`
}

// MetaResponse is the wire shape of a meta endpoint response. Meta is null
// when the id is not cached; absence is a normal response, not an error.
type MetaResponse struct {
	Meta *Meta `json:"meta"`
}
