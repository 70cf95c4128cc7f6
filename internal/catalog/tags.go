package catalog

import (
	"sort"
	"strings"
	"unicode"
)

// NormalizeTag trims, strips a leading '#', lowercases and joins internal
// whitespace runs with '-'. The result may be empty.
func NormalizeTag(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "#")
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), "-")
}

// NormalizeTags normalizes each tag, drops empties and returns a sorted,
// deduplicated slice. A nil or empty input yields an empty, non-nil slice.
func NormalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := NormalizeTag(r)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// StripExt removes the final extension from a filename. A name whose only
// dot is the first character is returned unchanged.
func StripExt(name string) string {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name
	}
	return name[:i]
}

// Extension returns the lowercase text after the last dot, or "".
func Extension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// DisplayTitle picks the trimmed override when set, else the filename
// without its extension.
func DisplayTitle(override, filename string) string {
	if t := strings.TrimSpace(override); t != "" {
		return t
	}
	return StripExt(filename)
}
