package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"atelier/internal/query"
)

// GetTags ranks the tags of the entries matching the filter state, ignoring
// its tag filter. rank=popular|alpha overrides the configured tag sort.
func (h *Handlers) GetTags(w http.ResponseWriter, r *http.Request) {
	v := h.current()
	state := v.codec.DecodeValues(r.URL.Query())
	mode := query.RankMode(strings.ToLower(r.URL.Query().Get("rank")))

	tags, err := v.engine.TagRanking(r.Context(), state.Spec(), mode)
	if err != nil {
		writeError(w, "rank tags", err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// GetAllTags lists every tag under the mount in m, or in the whole catalog.
func (h *Handlers) GetAllTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.current().engine.AllTags(r.Context(), r.URL.Query().Get("m"))
	if err != nil {
		writeError(w, "list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// RenameTagRequest names the replacement tag.
type RenameTagRequest struct {
	Name string `json:"name"`
}

// RenameTag renames a tag across the catalog, merging into an existing tag.
func (h *Handlers) RenameTag(w http.ResponseWriter, r *http.Request) {
	var req RenameTagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "rename tag", err)
		return
	}
	out, err := h.editor.RenameTag(r.Context(), mux.Vars(r)["tag"], req.Name)
	if err != nil {
		writeError(w, "rename tag", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteTag removes a tag from every entry.
func (h *Handlers) DeleteTag(w http.ResponseWriter, r *http.Request) {
	out, err := h.editor.DeleteTag(r.Context(), mux.Vars(r)["tag"])
	if err != nil {
		writeError(w, "delete tag", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
