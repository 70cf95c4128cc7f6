// Package probe reads media durations with ffprobe and records them on
// catalog entries that do not have one yet.
//
// ffprobe is optional. When the binary cannot be found, Available reports
// false and Fill leaves the catalog alone.
package probe
