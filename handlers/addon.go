package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"indiastreamz/config"
	"indiastreamz/models"
	"indiastreamz/services/cache"
	"indiastreamz/utils/classify"
)

// catalogPageSize is the number of catalog rows per skip page.
const catalogPageSize = 100

// contentStore is the read side of the cache the addon serves from.
type contentStore interface {
	ReadCatalog(language string) ([]models.CatalogEntry, bool, error)
	ReadMeta(id string) (models.Meta, bool, error)
	ReadStreams(id string) ([]models.Stream, bool, error)
}

var _ contentStore = (*cache.Store)(nil)

// AddonHandler serves the Stremio addon protocol: manifest, catalogs,
// metas and streams, all read straight from the cache store.
type AddonHandler struct {
	Store   contentStore
	Addon   config.AddonSettings
	Version string
}

func NewAddonHandler(store contentStore, addon config.AddonSettings, version string) *AddonHandler {
	return &AddonHandler{Store: store, Addon: addon, Version: version}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[handlers] write response: %v", err)
	}
}

type manifestCatalog struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Extra []manifestExtra `json:"extra,omitempty"`
}

type manifestExtra struct {
	Name       string `json:"name"`
	IsRequired bool   `json:"isRequired"`
}

type manifest struct {
	ID          string            `json:"id"`
	Version     string            `json:"version"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Resources   []string          `json:"resources"`
	Types       []string          `json:"types"`
	Catalogs    []manifestCatalog `json:"catalogs"`
	IDPrefixes  []string          `json:"idPrefixes,omitempty"`
}

func (h *AddonHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	m := manifest{
		ID:          "com.indiastreamz.addon",
		Version:     h.Version,
		Name:        h.Addon.Name,
		Description: h.Addon.Description,
		Resources:   []string{"catalog", "meta", "stream"},
		Types:       []string{models.TypeMovie, models.TypeSeries},
	}

	extra := []manifestExtra{{Name: "search"}, {Name: "skip"}}
	caser := func(tag string) string { return strings.ToUpper(tag[:1]) + tag[1:] }
	for _, contentType := range []string{models.TypeMovie, models.TypeSeries} {
		label := "Movies"
		if contentType == models.TypeSeries {
			label = "Series"
		}
		for _, lang := range classify.KnownLanguages() {
			m.Catalogs = append(m.Catalogs, manifestCatalog{
				Type:  contentType,
				ID:    lang,
				Name:  h.Addon.Name + " " + caser(lang) + " " + label,
				Extra: extra,
			})
		}
	}

	writeJSON(w, http.StatusOK, m)
}

// Catalog serves /catalog/{type}/{id}.json and its /{extra} variant. The
// catalog id is a language tag; extra carries search and skip.
func (h *AddonHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	contentType := vars["type"]
	language := vars["id"]

	search, skip := parseExtra(vars["extra"])

	entries, ok, err := h.Store.ReadCatalog(language)
	if err != nil {
		log.Printf("[handlers] read catalog %q: %v", language, err)
		http.Error(w, "failed to read catalog", http.StatusInternalServerError)
		return
	}

	metas := make([]models.CatalogEntry, 0, len(entries))
	if ok {
		for _, e := range entries {
			if e.Type != contentType {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(e.Name), search) {
				continue
			}
			metas = append(metas, e)
		}
	}

	if skip >= len(metas) {
		metas = metas[:0]
	} else {
		metas = metas[skip:]
		if len(metas) > catalogPageSize {
			metas = metas[:catalogPageSize]
		}
	}

	writeJSON(w, http.StatusOK, models.CatalogResponse{Metas: metas})
}

// parseExtra decodes the Stremio extra path segment, e.g. "skip=100" or
// "search=jailer&skip=100".
func parseExtra(extra string) (search string, skip int) {
	if extra == "" {
		return "", 0
	}
	values, err := url.ParseQuery(extra)
	if err != nil {
		return "", 0
	}
	search = strings.ToLower(strings.TrimSpace(values.Get("search")))
	if n, err := strconv.Atoi(values.Get("skip")); err == nil && n > 0 {
		skip = n
	}
	return search, skip
}

func (h *AddonHandler) Meta(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	meta, ok, err := h.Store.ReadMeta(id)
	if err != nil {
		log.Printf("[handlers] read meta %q: %v", id, err)
		http.Error(w, "failed to read meta", http.StatusInternalServerError)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, models.MetaResponse{Meta: nil})
		return
	}
	writeJSON(w, http.StatusOK, models.MetaResponse{Meta: &meta})
}

// Stream serves /stream/{type}/{id}.json; the id may be a content id or an
// episode key "<seriesID>:<season>:<episode>".
func (h *AddonHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	streams, ok, err := h.Store.ReadStreams(id)
	if err != nil {
		log.Printf("[handlers] read streams %q: %v", id, err)
		http.Error(w, "failed to read streams", http.StatusInternalServerError)
		return
	}
	if !ok || streams == nil {
		streams = []models.Stream{}
	}
	writeJSON(w, http.StatusOK, models.StreamResponse{Streams: streams})
}
