package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"atelier/internal/catalog"
	"atelier/internal/logging"
	"atelier/internal/query"
)

const (
	// AppName identifies documents written by this application.
	AppName = "atelier"
	// Version is the document format version.
	Version = 1

	// SettingsKey is the metadata key holding imported settings.
	SettingsKey = "settings"

	defaultChunkSize = 50
)

// ErrIncompatible is returned for documents from another app or format
// version.
var ErrIncompatible = errors.New("incompatible backup document")

// Mode selects how an import treats existing data.
type Mode string

const (
	// Merge upserts the document's records over the catalog.
	Merge Mode = "merge"
	// Replace deletes every entry and mount before writing the document.
	Replace Mode = "replace"
)

// ParseMode accepts "merge" or "replace"; empty means merge.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Merge:
		return Merge, nil
	case Replace:
		return Replace, nil
	}
	return "", fmt.Errorf("unknown import mode %q", s)
}

// Document is the on-disk backup format.
type Document struct {
	App        string    `json:"app"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	Data       Data      `json:"data"`
}

// Data holds the exported records.
type Data struct {
	Mounts   []catalog.Mount `json:"mounts"`
	Entries  []catalog.Entry `json:"entries"`
	Settings *query.Settings `json:"settings,omitempty"`
}

// Store is what export and import need from the catalog.
type Store interface {
	IterateAll(ctx context.Context, fn func(catalog.Entry) error) error
	BulkPut(ctx context.Context, entries []catalog.Entry) error
	Delete(ctx context.Context, id string) error
	catalog.Mounts
	catalog.Meta
}

// Result summarizes an import.
type Result struct {
	Mode            Mode `json:"mode"`
	Mounts          int  `json:"mounts"`
	Entries         int  `json:"entries"`
	Invalid         int  `json:"invalid"`
	Removed         int  `json:"removed"`
	SettingsApplied bool `json:"settingsApplied"`
}

// Export snapshots every mount and entry together with settings.
func Export(ctx context.Context, s Store, settings query.Settings, now time.Time) (Document, error) {
	mounts, err := s.ListMounts(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("failed to list mounts: %w", err)
	}
	entries := []catalog.Entry{}
	err = s.IterateAll(ctx, func(e catalog.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return Document{}, fmt.Errorf("failed to read entries: %w", err)
	}
	if mounts == nil {
		mounts = []catalog.Mount{}
	}
	return Document{
		App:        AppName,
		Version:    Version,
		ExportedAt: now.UTC(),
		Data:       Data{Mounts: mounts, Entries: entries, Settings: &settings},
	}, nil
}

// Write encodes doc as indented JSON.
func Write(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Read decodes and checks a document.
func Read(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if doc.App != AppName {
		return Document{}, fmt.Errorf("%w: app %q", ErrIncompatible, doc.App)
	}
	if doc.Version != Version {
		return Document{}, fmt.Errorf("%w: version %d, want %d", ErrIncompatible, doc.Version, Version)
	}
	return doc, nil
}

// Importer writes documents into a store.
type Importer struct {
	store     Store
	chunkSize int
}

// NewImporter creates an Importer writing entries chunkSize at a time.
func NewImporter(s Store, chunkSize int) *Importer {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Importer{store: s, chunkSize: chunkSize}
}

// Import applies doc in the given mode. Records that fail validation are
// counted and skipped. Settings, when present, are stored under SettingsKey.
func (im *Importer) Import(ctx context.Context, doc Document, mode Mode) (Result, error) {
	res := Result{Mode: mode}

	mounts, entries, invalid := sanitize(doc.Data)
	res.Invalid = invalid

	if mode == Replace {
		removed, err := im.clear(ctx)
		res.Removed = removed
		if err != nil {
			return res, err
		}
	}

	for _, m := range mounts {
		if err := im.store.PutMount(ctx, m); err != nil {
			return res, fmt.Errorf("failed to import mount %s: %w", m.ID, err)
		}
		res.Mounts++
	}

	for chunk := range slices.Chunk(entries, im.chunkSize) {
		if err := im.store.BulkPut(ctx, chunk); err != nil {
			return res, fmt.Errorf("failed to import entries: %w", err)
		}
		res.Entries += len(chunk)
	}

	if doc.Data.Settings != nil {
		data, err := json.Marshal(doc.Data.Settings.Normalize())
		if err != nil {
			return res, err
		}
		if err := im.store.SetMeta(ctx, SettingsKey, string(data)); err != nil {
			return res, fmt.Errorf("failed to store settings: %w", err)
		}
		res.SettingsApplied = true
	}

	logging.Info("Imported backup (%s): %d mounts, %d entries, %d invalid, %d removed",
		mode, res.Mounts, res.Entries, res.Invalid, res.Removed)
	return res, nil
}

func (im *Importer) clear(ctx context.Context) (int, error) {
	var ids []string
	err := im.store.IterateAll(ctx, func(e catalog.Entry) error {
		ids = append(ids, e.ID)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list entries: %w", err)
	}
	removed := 0
	for _, id := range ids {
		if err := im.store.Delete(ctx, id); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return removed, fmt.Errorf("failed to delete entry %s: %w", id, err)
		}
		removed++
	}

	mounts, err := im.store.ListMounts(ctx)
	if err != nil {
		return removed, fmt.Errorf("failed to list mounts: %w", err)
	}
	for _, m := range mounts {
		if err := im.store.DeleteMount(ctx, m.ID); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return removed, fmt.Errorf("failed to delete mount %s: %w", m.ID, err)
		}
	}
	return removed, nil
}

// sanitize drops records that could not have been written by a valid
// catalog and normalizes the rest.
func sanitize(d Data) ([]catalog.Mount, []catalog.Entry, int) {
	invalid := 0

	mounts := make([]catalog.Mount, 0, len(d.Mounts))
	for _, m := range d.Mounts {
		if m.ID == "" || !m.SourceKind.Valid() {
			invalid++
			continue
		}
		m.Extensions = catalog.NormalizeExtensions(m.Extensions)
		mounts = append(mounts, m)
	}

	seen := make(map[string]bool, len(d.Entries))
	entries := make([]catalog.Entry, 0, len(d.Entries))
	for _, e := range d.Entries {
		if e.ID == "" || seen[e.ID] || !e.SourceKind.Valid() || e.PlayCount < 0 {
			invalid++
			continue
		}
		if e.DurationSec != nil && *e.DurationSec < 0 {
			e.DurationSec = nil
		}
		seen[e.ID] = true
		e.Tags = catalog.NormalizeTags(e.Tags)
		entries = append(entries, e)
	}
	return mounts, entries, invalid
}

// StoredSettings returns settings saved by a previous import, or fallback
// when none are stored or they cannot be read.
func StoredSettings(ctx context.Context, meta catalog.Meta, fallback query.Settings) query.Settings {
	raw, err := meta.GetMeta(ctx, SettingsKey)
	if err != nil {
		return fallback
	}
	s := fallback
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		logging.Warn("Ignoring stored settings: %v", err)
		return fallback
	}
	return s.Normalize()
}
