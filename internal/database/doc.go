/*
Package database implements catalog.Store on SQLite.

The database runs in WAL mode with a busy timeout so queries can proceed
while a scan commits batches. Schema:

  - entries: one row per cataloged file or URL, keyed by its deterministic id.
    idx_entries_mount_added serves per-mount ranges ordered by insertion time;
    idx_entries_added serves the whole catalog in the same order; a unique
    index on (mount_id, relative_path) keeps path and id in one-to-one
    correspondence.
  - entry_tags: (entry_id, tag) pairs, cascaded on entry deletion.
  - mounts: registered roots; extension and ignore lists stored as JSON.
  - metadata: key/value bookkeeping such as the last scan result per mount.

Every mutation runs in a transaction and bumps the embedded
catalog.Notifier after commit, so subscribers observe only committed state.
Query timings are exported through the internal/metrics DB counters.
*/
package database
