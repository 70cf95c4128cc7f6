package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"atelier/internal/backup"
	"atelier/internal/logging"
)

// maxBackupBody bounds uploaded backup documents.
const maxBackupBody = 256 << 20

// ExportBackup downloads every mount, entry and the active settings.
func (h *Handlers) ExportBackup(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	doc, err := backup.Export(r.Context(), h.store, h.current().engine.Settings(), now)
	if err != nil {
		writeError(w, "export backup", err)
		return
	}

	var buf bytes.Buffer
	if err := backup.Write(&buf, doc); err != nil {
		writeError(w, "export backup", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	attachment(w, fmt.Sprintf("atelier-backup-%s.json", now.UTC().Format("20060102-150405")))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logging.Debug("export backup: %v", err)
	}
}

// ImportBackup applies an uploaded backup in mode=merge (default) or
// mode=replace. Imported settings take effect immediately.
func (h *Handlers) ImportBackup(w http.ResponseWriter, r *http.Request) {
	mode, err := backup.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, "import backup", badRequest("%v", err))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBackupBody)
	doc, err := backup.Read(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, "backup too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "import backup", err)
		return
	}

	res, err := backup.NewImporter(h.store, h.cfg.Bulk.ChunkSize).Import(r.Context(), doc, mode)
	if err != nil {
		writeError(w, "import backup", err)
		return
	}
	if res.SettingsApplied {
		h.reloadSettings(r.Context())
	}
	writeJSON(w, http.StatusOK, res)
}
