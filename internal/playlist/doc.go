// Package playlist reads and writes Windows Media Player (WPL) playlists.
//
// Build turns any ordered set of entries, typically the full result of a
// filter, into a playlist whose items point at each entry's source ref.
// Match goes the other way: it resolves the items of an existing playlist,
// which may use Windows, UNC or relative paths, to catalog entries by source
// ref, then by the longest matching path suffix.
package playlist
