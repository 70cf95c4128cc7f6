package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"atelier/internal/backup"
	"atelier/internal/bulk"
	"atelier/internal/catalog"
	"atelier/internal/indexer"
	"atelier/internal/logging"
	"atelier/internal/media"
)

// maxJSONBody bounds request bodies other than images and backups.
const maxJSONBody = 1 << 20

// writeJSON encodes v as JSON with the given status code. Encoding errors
// are logged; the status line has already been sent by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes {"error": message} with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// writeError maps err to a status code and writes it. Server side failures
// are logged with the operation that failed.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error("%s: %v", op, err)
	} else {
		logging.Debug("%s: %v", op, err)
	}
	writeJSONError(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, indexer.ErrScanInProgress), errors.Is(err, bulk.ErrNothingToUndo):
		return http.StatusConflict
	case errors.Is(err, indexer.ErrRootUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, bulk.ErrInvalidAction), errors.Is(err, backup.ErrIncompatible),
		errors.Is(err, media.ErrInvalidImage), errors.Is(err, media.ErrInvalidRef),
		errors.Is(err, indexer.ErrInvalidMount), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// requireID returns the id query parameter.
func requireID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		return "", badRequest("id is required")
	}
	return id, nil
}

// attachment sets a download filename.
func attachment(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
