/*
Package indexer reconciles mounted directory trees into the catalog.

A scan walks a mount's root through the filesystem.Dir capability returned
by an Opener, skipping hidden names, ignore-glob matches and files whose
extension the mount does not accept. Every accepted file becomes a
discovered entry keyed by catalog.EntryID and is committed in batches
through Store.UpsertPaths, which inserts new ids and refreshes only the
source and path fields of known ones. User edits such as tags, favorites and
play history therefore survive rescans, and rescanning an unchanged tree
adds nothing.

Failure handling:

  - a root that cannot be opened or listed fails the scan with
    ErrRootUnavailable before anything is written
  - an unreadable subdirectory is counted as skipped and the walk goes on
  - a failed batch is retried entry by entry; entries that still fail are
    counted as skipped

Files that disappeared since the last scan are left in the catalog.

The Indexer allows one scan per mount at a time (ErrScanInProgress), runs
ScanAll with a bounded worker pool sized by internal/workers, exports
progress for the health endpoint and records each outcome in the store's
metadata under "scan:<mount id>".
*/
package indexer
