package handlers

import (
	"errors"
	"net/http"

	"indiastreamz/services/scrapeloop"
)

// scrapeRunner is the orchestrator surface the admin endpoints need.
type scrapeRunner interface {
	TriggerAsync(full bool) (scrapeloop.Status, error)
	Status() scrapeloop.Status
}

var _ scrapeRunner = (*scrapeloop.Service)(nil)

// ScrapeHandler exposes the admin scrape trigger and status endpoints.
type ScrapeHandler struct {
	Runner scrapeRunner
}

func NewScrapeHandler(runner scrapeRunner) *ScrapeHandler {
	return &ScrapeHandler{Runner: runner}
}

// Trigger starts a scrape cycle in the background. ?full=true replaces the
// whole cache instead of updating it incrementally.
func (h *ScrapeHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	full := r.URL.Query().Get("full") == "true"

	status, err := h.Runner.TriggerAsync(full)
	if errors.Is(err, scrapeloop.ErrScrapeRunning) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  err.Error(),
			"status": status,
		})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

func (h *ScrapeHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Runner.Status())
}

func (h *ScrapeHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"scrape": h.Runner.Status().State,
	})
}
