package mediatypes

import (
	"sort"
	"strings"
)

// Kind groups extensions by how they are played.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
	KindOther Kind = "other"
)

type format struct {
	kind Kind
	mime string
}

// formats is keyed by lowercase extension without the leading dot, the
// same form mounts store.
var formats = map[string]format{
	"mp4":  {KindVideo, "video/mp4"},
	"m4v":  {KindVideo, "video/x-m4v"},
	"mkv":  {KindVideo, "video/x-matroska"},
	"webm": {KindVideo, "video/webm"},
	"mov":  {KindVideo, "video/quicktime"},
	"avi":  {KindVideo, "video/x-msvideo"},
	"wmv":  {KindVideo, "video/x-ms-wmv"},
	"flv":  {KindVideo, "video/x-flv"},
	"mpeg": {KindVideo, "video/mpeg"},
	"mpg":  {KindVideo, "video/mpeg"},
	"3gp":  {KindVideo, "video/3gpp"},
	"ts":   {KindVideo, "video/mp2t"},
	"ogv":  {KindVideo, "video/ogg"},

	"mp3":  {KindAudio, "audio/mpeg"},
	"m4a":  {KindAudio, "audio/mp4"},
	"flac": {KindAudio, "audio/flac"},
	"ogg":  {KindAudio, "audio/ogg"},
	"opus": {KindAudio, "audio/opus"},
	"wav":  {KindAudio, "audio/wav"},

	"jpg":  {KindImage, "image/jpeg"},
	"jpeg": {KindImage, "image/jpeg"},
	"png":  {KindImage, "image/png"},
	"gif":  {KindImage, "image/gif"},
	"webp": {KindImage, "image/webp"},
}

func normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// KindOf returns the kind of an extension. A leading dot and case are
// ignored.
func KindOf(ext string) Kind {
	if f, ok := formats[normalize(ext)]; ok {
		return f.kind
	}
	return KindOther
}

// MimeType returns the content type served for an extension, or
// application/octet-stream when unknown.
func MimeType(ext string) string {
	if f, ok := formats[normalize(ext)]; ok {
		return f.mime
	}
	return "application/octet-stream"
}

// IsPlayable reports whether the extension is audio or video.
func IsPlayable(ext string) bool {
	k := KindOf(ext)
	return k == KindVideo || k == KindAudio
}

// ExtensionsOf lists the known extensions of the given kinds, sorted.
func ExtensionsOf(kinds ...Kind) []string {
	var out []string
	for ext, f := range formats {
		for _, k := range kinds {
			if f.kind == k {
				out = append(out, ext)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// DefaultMountExtensions is used for a new mount that names none.
func DefaultMountExtensions() []string {
	return ExtensionsOf(KindVideo, KindAudio)
}
