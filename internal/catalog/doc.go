// Package catalog defines the entry and mount records, the Store contract
// every backend satisfies, tag normalization, and single-entry edits.
//
// Entries are keyed by a deterministic id derived from the owning mount
// and the file's relative path, so a rescan of the same tree updates rather
// than duplicates. User-owned fields (tags, favorite, title override,
// thumbnail, duration and play stats) are only changed through the edit
// helpers or bulk operations; reconciliation writes go through UpsertPaths,
// which touches path fields only.
//
// MemoryStore is a complete in-process Store used for ephemeral catalogs
// and tests. The SQLite implementation lives in internal/database.
package catalog
