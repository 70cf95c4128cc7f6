package catalog

import (
	"reflect"
	"testing"
)

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"Comedy", "comedy"},
		{"  Road Trip  ", "road-trip"},
		{"#Summer", "summer"},
		{"# summer vibes", "summer-vibes"},
		{"a \t b\n c", "a-b-c"},
		{"   ", ""},
		{"#", ""},
		{"already-fine", "already-fine"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeTag(tt.input); got != tt.expected {
				t.Errorf("NormalizeTag(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	t.Parallel()

	got := NormalizeTags([]string{"B", "a", "#b", " ", "Road Trip", "road-trip"})
	want := []string{"a", "b", "road-trip"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeTags() = %v, want %v", got, want)
	}

	if got := NormalizeTags(nil); got == nil || len(got) != 0 {
		t.Errorf("NormalizeTags(nil) = %#v, want empty non-nil slice", got)
	}
}

func TestDisplayTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		override string
		filename string
		expected string
	}{
		{"override wins", "My Clip", "clip.mp4", "My Clip"},
		{"override trimmed", "  Spaced  ", "clip.mp4", "Spaced"},
		{"blank override falls back", "   ", "clip.mp4", "clip"},
		{"only last extension stripped", "", "archive.tar.gz", "archive.tar"},
		{"no extension", "", "README", "README"},
		{"leading dot kept", "", ".hidden", ".hidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DisplayTitle(tt.override, tt.filename); got != tt.expected {
				t.Errorf("DisplayTitle(%q, %q) = %q, want %q", tt.override, tt.filename, got, tt.expected)
			}
		})
	}
}

func TestExtension(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"x.MP4":        "mp4",
		"a.b.mkv":      "mkv",
		"noext":        "",
		"trailingdot.": "",
	}
	for name, want := range tests {
		if got := Extension(name); got != want {
			t.Errorf("Extension(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestNormalizeExtensions(t *testing.T) {
	t.Parallel()

	got := NormalizeExtensions([]string{".MP4", "mkv", "mp4", " .webm ", ""})
	want := []string{"mp4", "mkv", "webm"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeExtensions() = %v, want %v", got, want)
	}
}

func TestEntryIDs(t *testing.T) {
	t.Parallel()

	if got := EntryID("m1", "movies/x.mp4"); got != "m1::movies/x.mp4" {
		t.Errorf("EntryID() = %q", got)
	}
	if EntryID("a", "x.mp4") == EntryID("b", "x.mp4") {
		t.Error("ids from different mounts collide")
	}
	if got := URLEntryID("https://example.com/v.mp4"); got != "url::https://example.com/v.mp4" {
		t.Errorf("URLEntryID() = %q", got)
	}
}
