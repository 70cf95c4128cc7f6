package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceKind says how an entry's bytes are reached.
type SourceKind string

const (
	// SourceHandle entries live under a mounted directory.
	SourceHandle SourceKind = "handle"
	// SourceURL entries are addressed by an external URL.
	SourceURL SourceKind = "url"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	return k == SourceHandle || k == SourceURL
}

const (
	idSeparator = "::"
	urlPrefix   = "url"
)

// Entry is a cataloged media file.
type Entry struct {
	ID            string     `json:"id"`
	MountID       string     `json:"mountId,omitempty"`
	RelativePath  string     `json:"relativePath,omitempty"`
	Filename      string     `json:"filename"`
	SourceKind    SourceKind `json:"sourceKind"`
	SourceRef     string     `json:"sourceRef,omitempty"`
	Tags          []string   `json:"tags"`
	Favorite      bool       `json:"favorite"`
	TitleOverride string     `json:"titleOverride,omitempty"`
	Thumbnail     string     `json:"thumbnail,omitempty"`
	DurationSec   *float64   `json:"durationSec,omitempty"`
	AddedAt       int64      `json:"addedAt"`
	LastPlayedAt  *int64     `json:"lastPlayedAt,omitempty"`
	PlayCount     int        `json:"playCount"`
}

// Title returns the name shown for the entry.
func (e Entry) Title() string {
	return DisplayTitle(e.TitleOverride, e.Filename)
}

// HasTag reports whether the entry carries tag.
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (e Entry) Clone() Entry {
	c := e
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	if e.DurationSec != nil {
		d := *e.DurationSec
		c.DurationSec = &d
	}
	if e.LastPlayedAt != nil {
		p := *e.LastPlayedAt
		c.LastPlayedAt = &p
	}
	return c
}

// Mount is a registered root from which entries are discovered.
type Mount struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Color          string     `json:"color,omitempty"`
	SourceKind     SourceKind `json:"sourceKind"`
	Root           string     `json:"root,omitempty"`
	BaseURL        string     `json:"baseUrl,omitempty"`
	IncludeSubdirs bool       `json:"includeSubdirs"`
	Extensions     []string   `json:"extensions"`
	IgnoreGlobs    []string   `json:"ignoreGlobs,omitempty"`
	AddedAt        int64      `json:"addedAt"`
}

// EntryID derives the identity of a file discovered under a mount.
func EntryID(mountID, relativePath string) string {
	return mountID + idSeparator + relativePath
}

// URLEntryID derives the identity of an externally addressed entry.
func URLEntryID(url string) string {
	return urlPrefix + idSeparator + url
}

// NewMountID returns a fresh random mount identifier.
func NewMountID() string {
	return uuid.NewString()
}

// NormalizeExtensions lowercases, strips leading dots and dedupes.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]bool, len(exts))
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimLeft(strings.TrimSpace(e), "."))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// NowMillis returns t as unix milliseconds.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
