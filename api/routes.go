package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"indiastreamz/handlers"
)

// corsMiddleware handles CORS for all routes. Stremio clients fetch the
// manifest and resources cross-origin, so every endpoint must allow it.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts the addon protocol and admin endpoints onto the router.
func Register(
	r *mux.Router,
	addonHandler *handlers.AddonHandler,
	scrapeHandler *handlers.ScrapeHandler,
) {
	r.Use(corsMiddleware)

	// Stremio addon protocol
	r.HandleFunc("/manifest.json", addonHandler.Manifest).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/catalog/{type}/{id}.json", addonHandler.Catalog).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/catalog/{type}/{id}/{extra}.json", addonHandler.Catalog).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/meta/{type}/{id}.json", addonHandler.Meta).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/stream/{type}/{id}.json", addonHandler.Stream).Methods(http.MethodGet, http.MethodOptions)

	// Admin endpoints
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scrape", scrapeHandler.Trigger).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/scrape/status", scrapeHandler.Status).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/health", scrapeHandler.Health).Methods(http.MethodGet, http.MethodOptions)
}
