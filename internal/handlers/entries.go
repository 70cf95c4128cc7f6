package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"atelier/internal/catalog"
	"atelier/internal/filesystem"
	"atelier/internal/logging"
	"atelier/internal/mediatypes"
	"atelier/internal/query"
	"atelier/internal/streaming"
)

// EntriesResponse is one page of a filter together with its canonical
// filter-state string.
type EntriesResponse struct {
	query.Result
	State string `json:"state"`
}

// ListEntries evaluates the filter state in the query string.
func (h *Handlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	v := h.current()
	state := v.codec.DecodeValues(r.URL.Query())

	res, err := v.engine.Query(r.Context(), state.Spec())
	if err != nil {
		writeError(w, "query entries", err)
		return
	}
	writeJSON(w, http.StatusOK, EntriesResponse{Result: res, State: v.codec.Encode(state)})
}

// WatchEntries streams the result of a filter as server-sent events: one
// "result" event immediately and one after every catalog change, until the
// client disconnects.
func (h *Handlers) WatchEntries(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	v := h.current()
	state := v.codec.DecodeValues(r.URL.Query())
	canonical := v.codec.Encode(state)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for res := range v.engine.Watch(r.Context(), state.Spec()) {
		data, err := json.Marshal(EntriesResponse{Result: res, State: canonical})
		if err != nil {
			logging.Error("failed to encode watch result: %v", err)
			return
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: result\ndata: %s\n\n", res.Version, data); err != nil {
			return
		}
		flusher.Flush()
	}
}

// URLEntryRequest adds an externally addressed entry.
type URLEntryRequest struct {
	URL   string   `json:"url"`
	Title string   `json:"title,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// AddURLEntry catalogs a media URL that belongs to no mount.
func (h *Handlers) AddURLEntry(w http.ResponseWriter, r *http.Request) {
	var req URLEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "add url entry", err)
		return
	}

	u, err := url.ParseRequestURI(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeJSONError(w, "url must be an absolute http or https URL", http.StatusBadRequest)
		return
	}
	raw := u.String()
	id := catalog.URLEntryID(raw)

	if _, err := h.store.Get(r.Context(), id); err == nil {
		writeJSONError(w, "entry already exists", http.StatusConflict)
		return
	} else if !errors.Is(err, catalog.ErrNotFound) {
		writeError(w, "add url entry", err)
		return
	}

	filename := path.Base(u.Path)
	if filename == "/" || filename == "." {
		filename = u.Host
	}
	e := catalog.Entry{
		ID:            id,
		Filename:      filename,
		SourceKind:    catalog.SourceURL,
		SourceRef:     raw,
		Tags:          catalog.NormalizeTags(req.Tags),
		TitleOverride: strings.TrimSpace(req.Title),
		AddedAt:       h.now().UnixMilli(),
	}
	if err := h.store.Put(r.Context(), e); err != nil {
		writeError(w, "add url entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// GetEntry returns one entry.
func (h *Handlers) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := requireID(r)
	if err != nil {
		writeError(w, "get entry", err)
		return
	}
	e, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// EntryPatch lists the user fields to change. Absent fields stay as they
// are.
type EntryPatch struct {
	Tags          *[]string `json:"tags,omitempty"`
	AddTags       []string  `json:"addTags,omitempty"`
	RemoveTags    []string  `json:"removeTags,omitempty"`
	Favorite      *bool     `json:"favorite,omitempty"`
	Title         *string   `json:"title,omitempty"`
	DurationSec   *float64  `json:"durationSec,omitempty"`
	ClearDuration bool      `json:"clearDuration,omitempty"`
}

func (p EntryPatch) validate() error {
	if p.DurationSec != nil && *p.DurationSec < 0 {
		return badRequest("durationSec must not be negative")
	}
	if p.DurationSec != nil && p.ClearDuration {
		return badRequest("durationSec and clearDuration are exclusive")
	}
	for _, t := range p.AddTags {
		if catalog.NormalizeTag(t) == "" {
			return badRequest("invalid tag %q", t)
		}
	}
	return nil
}

func (p EntryPatch) apply(e *catalog.Entry) {
	if p.Tags != nil {
		e.Tags = *p.Tags
	}
	e.Tags = append(e.Tags, p.AddTags...)
	for _, t := range p.RemoveTags {
		e.Tags = catalog.WithoutTag(e.Tags, catalog.NormalizeTag(t))
	}
	if p.Favorite != nil {
		e.Favorite = *p.Favorite
	}
	if p.Title != nil {
		e.TitleOverride = strings.TrimSpace(*p.Title)
	}
	if p.DurationSec != nil {
		d := *p.DurationSec
		e.DurationSec = &d
	}
	if p.ClearDuration {
		e.DurationSec = nil
	}
}

// PatchEntry edits the user fields of one entry in a single write.
func (h *Handlers) PatchEntry(w http.ResponseWriter, r *http.Request) {
	id, err := requireID(r)
	if err != nil {
		writeError(w, "patch entry", err)
		return
	}
	var patch EntryPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, "patch entry", err)
		return
	}
	if err := patch.validate(); err != nil {
		writeError(w, "patch entry", err)
		return
	}

	e, err := catalog.Update(r.Context(), h.store, id, patch.apply)
	if err != nil {
		writeError(w, "patch entry", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteEntry removes an entry from the catalog. The file is untouched.
func (h *Handlers) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := requireID(r)
	if err != nil {
		writeError(w, "delete entry", err)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, "delete entry", err)
		return
	}
	writeJSONStatus(w, "deleted")
}

// RecordPlay counts a playback of the entry.
func (h *Handlers) RecordPlay(w http.ResponseWriter, r *http.Request) {
	id, err := requireID(r)
	if err != nil {
		writeError(w, "record play", err)
		return
	}
	e, err := catalog.RecordPlay(r.Context(), h.store, id, h.now())
	if err != nil {
		writeError(w, "record play", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ServeEntryFile streams the bytes of a mounted entry with range support.
// URL entries redirect to their address.
func (h *Handlers) ServeEntryFile(w http.ResponseWriter, r *http.Request) {
	id, err := requireID(r)
	if err != nil {
		writeError(w, "serve file", err)
		return
	}
	e, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, "serve file", err)
		return
	}

	if e.SourceKind == catalog.SourceURL {
		http.Redirect(w, r, e.SourceRef, http.StatusFound)
		return
	}

	m, err := h.store.GetMount(r.Context(), e.MountID)
	if err != nil {
		writeError(w, "serve file", fmt.Errorf("mount of %s: %w", e.ID, err))
		return
	}
	if !withinRoot(m.Root, e.SourceRef) {
		writeJSONError(w, "entry is outside its mount", http.StatusForbidden)
		return
	}

	rc, err := filesystem.NewOSFile(e.SourceRef, h.cfg.Retry).Open(r.Context())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSONError(w, "file is missing", http.StatusNotFound)
			return
		}
		writeError(w, "serve file", err)
		return
	}
	defer rc.Close()

	sw := streaming.NewWriter(r.Context(), w, streaming.DefaultConfig())
	defer func() {
		if err := sw.Close(); err != nil {
			logging.Debug("serve file %s: clearing deadline: %v", e.ID, err)
		}
	}()

	sw.Header().Set("Content-Type", mediatypes.MimeType(catalog.Extension(e.Filename)))
	if f, ok := rc.(*os.File); ok {
		if info, err := f.Stat(); err == nil {
			http.ServeContent(sw, r, e.Filename, info.ModTime(), f)
			return
		}
	}
	if _, err := io.Copy(sw, rc); err != nil {
		logging.Debug("serve file %s after %d bytes: %v", e.ID, sw.Written(), err)
	}
}

// withinRoot reports whether ref lies under root.
func withinRoot(root, ref string) bool {
	if root == "" || ref == "" {
		return false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, ref)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
