package handlers

import (
	"net/http"

	"atelier/internal/catalog"
	"atelier/internal/filterstate"
	"atelier/internal/indexer"
	"atelier/internal/query"
)

// StatsResponse combines catalog counts with running scans.
type StatsResponse struct {
	catalog.Stats
	Scans []indexer.ScanProgress `json:"scans"`
}

// GetStats returns catalog counts and scan progress.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeError(w, "get stats", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Stats: stats, Scans: h.indexer.Progress()})
}

// SettingsResponse is what a client needs to build its filter controls.
type SettingsResponse struct {
	query.Settings
	DurationBuckets []filterstate.Bucket `json:"durationBuckets"`
	Defaults        filterstate.State    `json:"defaults"`
}

// GetSettings returns the active library settings.
func (h *Handlers) GetSettings(w http.ResponseWriter, _ *http.Request) {
	v := h.current()
	writeJSON(w, http.StatusOK, SettingsResponse{
		Settings:        v.engine.Settings(),
		DurationBuckets: filterstate.Buckets(),
		Defaults:        v.codec.Defaults(),
	})
}
