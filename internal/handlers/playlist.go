package handlers

import (
	"bytes"
	"net/http"
	"strings"

	"atelier/internal/bulk"
	"atelier/internal/catalog"
	"atelier/internal/logging"
	"atelier/internal/playlist"
)

// maxPlaylistBody bounds uploaded playlists.
const maxPlaylistBody = 8 << 20

// ExportPlaylist writes every playable entry of the filtered set as a WPL
// playlist, ignoring pagination.
func (h *Handlers) ExportPlaylist(w http.ResponseWriter, r *http.Request) {
	v := h.current()
	state := v.codec.DecodeValues(r.URL.Query())

	entries, err := v.engine.Matches(r.Context(), state.Spec())
	if err != nil {
		writeError(w, "export playlist", err)
		return
	}

	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" {
		title = "atelier"
		if len(state.Tags) > 0 {
			title = strings.Join(state.Tags, ", ")
		}
	}

	var buf bytes.Buffer
	if err := playlist.Write(&buf, playlist.Build(title, entries)); err != nil {
		writeError(w, "export playlist", err)
		return
	}
	w.Header().Set("Content-Type", playlist.ContentType)
	attachment(w, title+".wpl")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logging.Debug("export playlist: %v", err)
	}
}

// PlaylistImportResponse reports how a playlist mapped onto the catalog.
type PlaylistImportResponse struct {
	Tag       string       `json:"tag"`
	Matched   int          `json:"matched"`
	Unmatched []string     `json:"unmatched"`
	Outcome   bulk.Outcome `json:"outcome"`
}

// ImportPlaylist tags every catalog entry named by the uploaded playlist
// with the tag parameter. The change can be undone like any bulk action.
func (h *Handlers) ImportPlaylist(w http.ResponseWriter, r *http.Request) {
	tag := catalog.NormalizeTag(r.URL.Query().Get("tag"))
	if tag == "" {
		writeJSONError(w, "tag is required", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPlaylistBody)
	p, err := playlist.Parse(r.Body)
	if err != nil {
		writeError(w, "import playlist", badRequest("%v", err))
		return
	}

	var all []catalog.Entry
	err = h.store.IterateAll(r.Context(), func(e catalog.Entry) error {
		all = append(all, e)
		return nil
	})
	if err != nil {
		writeError(w, "import playlist", err)
		return
	}

	matched, unmatched := playlist.Match(p, all)
	ids := make([]string, 0, len(matched))
	for _, e := range matched {
		ids = append(ids, e.ID)
	}

	resp := PlaylistImportResponse{Tag: tag, Matched: len(matched), Unmatched: unmatched}
	if resp.Unmatched == nil {
		resp.Unmatched = []string{}
	}
	if len(ids) > 0 {
		out, err := h.editor.Apply(r.Context(), ids, bulk.AddTag, tag)
		if err != nil {
			writeError(w, "import playlist", err)
			return
		}
		resp.Outcome = out
	}
	writeJSON(w, http.StatusOK, resp)
}
