// Package handlers provides the HTTP API of the catalog.
//
// It includes handlers for:
//   - Filtered, paginated entry queries and live result streams
//   - Entry edits, play tracking and file serving
//   - Thumbnails
//   - Tag rankings, renames and deletes
//   - Bulk edits with single-level undo
//   - Mount registration and scans
//   - Playlist and backup export and import
//   - Health checks, stats and version information
//
// Filter state travels as URL query parameters in the canonical form
// produced by package filterstate, so any page of results can be linked.
package handlers
