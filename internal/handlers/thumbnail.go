package handlers

import (
	"errors"
	"net/http"
	"os"

	"atelier/internal/catalog"
	"atelier/internal/media"
)

var errThumbnailsDisabled = errors.New("thumbnails are disabled")

// GetThumbnail serves the stored thumbnail of an entry.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	if h.thumbs == nil {
		writeJSONError(w, errThumbnailsDisabled.Error(), http.StatusServiceUnavailable)
		return
	}
	id, err := requireID(r)
	if err != nil {
		writeError(w, "get thumbnail", err)
		return
	}
	e, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get thumbnail", err)
		return
	}
	if e.Thumbnail == "" {
		writeJSONError(w, "entry has no thumbnail", http.StatusNotFound)
		return
	}

	f, err := h.thumbs.Open(e.Thumbnail)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSONError(w, "thumbnail file is missing", http.StatusNotFound)
			return
		}
		writeError(w, "get thumbnail", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, "get thumbnail", err)
		return
	}

	// refs are content addressed, so the bytes behind one never change
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", `"`+e.Thumbnail+`"`)
	http.ServeContent(w, r, e.Thumbnail, info.ModTime(), f)
}

// PutThumbnail stores the request body as the entry's thumbnail.
func (h *Handlers) PutThumbnail(w http.ResponseWriter, r *http.Request) {
	if h.thumbs == nil {
		writeJSONError(w, errThumbnailsDisabled.Error(), http.StatusServiceUnavailable)
		return
	}
	id, err := requireID(r)
	if err != nil {
		writeError(w, "put thumbnail", err)
		return
	}
	if _, err := h.store.Get(r.Context(), id); err != nil {
		writeError(w, "put thumbnail", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadBytes)
	ref, err := h.thumbs.Save(r.Context(), r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = media.ErrImageTooLarge
		}
		writeError(w, "put thumbnail", err)
		return
	}

	e, err := catalog.SetThumbnail(r.Context(), h.store, id, ref)
	if err != nil {
		writeError(w, "put thumbnail", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteThumbnail clears the entry's thumbnail reference. The file stays
// until the next prune since other entries may share it.
func (h *Handlers) DeleteThumbnail(w http.ResponseWriter, r *http.Request) {
	id, err := requireID(r)
	if err != nil {
		writeError(w, "delete thumbnail", err)
		return
	}
	e, err := catalog.SetThumbnail(r.Context(), h.store, id, "")
	if err != nil {
		writeError(w, "delete thumbnail", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
