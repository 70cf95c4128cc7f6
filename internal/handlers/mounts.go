package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"atelier/internal/catalog"
	"atelier/internal/indexer"
)

// MountRequest registers a mount.
type MountRequest struct {
	Name           string             `json:"name"`
	Color          string             `json:"color,omitempty"`
	SourceKind     catalog.SourceKind `json:"sourceKind,omitempty"`
	Root           string             `json:"root,omitempty"`
	BaseURL        string             `json:"baseUrl,omitempty"`
	IncludeSubdirs *bool              `json:"includeSubdirs,omitempty"`
	Extensions     []string           `json:"extensions,omitempty"`
	IgnoreGlobs    []string           `json:"ignoreGlobs,omitempty"`
}

// MountResponse is a mount with the outcome of its last scan.
type MountResponse struct {
	catalog.Mount
	LastScan *indexer.ScanRecord `json:"lastScan,omitempty"`
}

// ListMounts returns every mount.
func (h *Handlers) ListMounts(w http.ResponseWriter, r *http.Request) {
	mounts, err := h.store.ListMounts(r.Context())
	if err != nil {
		writeError(w, "list mounts", err)
		return
	}
	out := make([]MountResponse, 0, len(mounts))
	for _, m := range mounts {
		out = append(out, h.mountResponse(r, m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) mountResponse(r *http.Request, m catalog.Mount) MountResponse {
	resp := MountResponse{Mount: m}
	if rec, err := h.indexer.LastScan(r.Context(), m.ID); err == nil {
		resp.LastScan = &rec
	}
	return resp
}

// CreateMount validates and registers a mount. A directory mount must be
// listable at creation time.
func (h *Handlers) CreateMount(w http.ResponseWriter, r *http.Request) {
	var req MountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "create mount", err)
		return
	}
	m, err := h.buildMount(req)
	if err != nil {
		writeError(w, "create mount", err)
		return
	}
	if err := h.store.PutMount(r.Context(), m); err != nil {
		writeError(w, "create mount", err)
		return
	}
	writeJSON(w, http.StatusCreated, MountResponse{Mount: m})
}

func (h *Handlers) buildMount(req MountRequest) (catalog.Mount, error) {
	m := catalog.Mount{
		Name:           req.Name,
		Color:          req.Color,
		SourceKind:     req.SourceKind,
		Root:           req.Root,
		BaseURL:        req.BaseURL,
		IncludeSubdirs: true,
		Extensions:     req.Extensions,
		IgnoreGlobs:    req.IgnoreGlobs,
		AddedAt:        h.now().UnixMilli(),
	}
	if req.IncludeSubdirs != nil {
		m.IncludeSubdirs = *req.IncludeSubdirs
	}
	return indexer.PrepareMount(m, h.cfg.Retry)
}

// GetMount returns one mount with its last scan.
func (h *Handlers) GetMount(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetMount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "get mount", err)
		return
	}
	writeJSON(w, http.StatusOK, h.mountResponse(r, m))
}

// DeleteMount unregisters a mount. Its entries stay in the catalog.
func (h *Handlers) DeleteMount(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteMount(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, "delete mount", err)
		return
	}
	writeJSONStatus(w, "deleted")
}

// ScanMount reconciles one directory mount and returns its statistics.
func (h *Handlers) ScanMount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := h.store.GetMount(r.Context(), id)
	if err != nil {
		writeError(w, "scan mount", err)
		return
	}
	if m.SourceKind != catalog.SourceHandle {
		writeJSONError(w, "only directory mounts can be scanned", http.StatusBadRequest)
		return
	}

	stats, err := h.indexer.TryScan(r.Context(), id)
	if err != nil {
		if errors.Is(err, indexer.ErrRootUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "stats": stats})
			return
		}
		writeError(w, "scan mount", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ScanAll scans every directory mount. Per-mount failures are reported in
// the results.
func (h *Handlers) ScanAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.indexer.ScanAll(r.Context())
	if err != nil {
		writeError(w, "scan all", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
