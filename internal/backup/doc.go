/*
Package backup exports the catalog to a JSON document and imports it back.

	{
	  "app": "atelier",
	  "version": 1,
	  "exportedAt": "2026-01-02T15:04:05Z",
	  "data": {"mounts": [...], "entries": [...], "settings": {...}}
	}

Imports either merge over the existing catalog or replace it. Entries are
written with BulkPut in chunks; a failure part way leaves the chunks already
written in place. Documents from another app or format version are rejected
with ErrIncompatible.
*/
package backup
