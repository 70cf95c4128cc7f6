/*
Package filesystem provides the directory and file capabilities consumed by
the scanner, plus retrying wrappers around os calls for NFS-backed libraries.

# Capabilities

A Dir yields (name, kind, handle) triples through Entries; a File exposes a
display name, a stable Ref persisted as an entry's source reference, and Open
for reading bytes on demand. OSDir and OSFile implement both over the local
filesystem:

	root, err := filesystem.OpenDir("/srv/videos", filesystem.DefaultRetryConfig())
	if err != nil {
	    return err // root unavailable
	}
	entries, err := root.Entries(ctx)

# Retry behavior

StatWithRetry, ReadDirWithRetry and OpenWithRetry retry only on ESTALE
(stale NFS file handle), with exponential backoff capped at MaxBackoff.
Every other error returns immediately. Defaults: 3 retries, 50ms initial
backoff, 500ms cap.

Metrics are reported through the Observer set with SetObserver; without one,
nothing is recorded.
*/
package filesystem
