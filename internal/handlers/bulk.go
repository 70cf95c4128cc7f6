package handlers

import (
	"net/http"

	"atelier/internal/bulk"
)

// BulkRequest applies one action to a selection.
type BulkRequest struct {
	IDs    []string    `json:"ids"`
	Action bulk.Action `json:"action"`
	Tag    string      `json:"tag,omitempty"`
}

// ApplyBulk runs a bulk action over the selected ids.
func (h *Handlers) ApplyBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "bulk edit", err)
		return
	}
	if len(req.IDs) == 0 {
		writeJSONError(w, "ids are required", http.StatusBadRequest)
		return
	}
	out, err := h.editor.Apply(r.Context(), req.IDs, req.Action, req.Tag)
	if err != nil {
		writeError(w, "bulk edit", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetUndo describes the action an undo would revert.
func (h *Handlers) GetUndo(w http.ResponseWriter, _ *http.Request) {
	info, ok := h.editor.LastAction()
	if !ok {
		writeJSONError(w, bulk.ErrNothingToUndo.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Undo reverts the last bulk or tag action.
func (h *Handlers) Undo(w http.ResponseWriter, r *http.Request) {
	out, err := h.editor.Undo(r.Context())
	if err != nil {
		writeError(w, "undo", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
