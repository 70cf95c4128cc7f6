package indexer

import (
	"path"
	"strings"
)

// ignored reports whether a mount-relative path matches one of the mount's
// ignore globs. A glob without a slash matches the base name at any depth;
// a "**/" prefix also matches at any depth and a "/**" suffix matches
// everything below a directory.
func ignored(globs []string, rel, name string) bool {
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if matchGlob(g, rel, name) {
			return true
		}
	}
	return false
}

func matchGlob(glob, rel, name string) bool {
	if strings.HasSuffix(glob, "/**") {
		dir := strings.TrimSuffix(glob, "/**")
		if matchGlob(dir, rel, name) {
			return true
		}
		for p := path.Dir(rel); p != "." && p != "/"; p = path.Dir(p) {
			if matchGlob(dir, p, path.Base(p)) {
				return true
			}
		}
		return false
	}

	glob = strings.TrimPrefix(glob, "**/")
	if !strings.Contains(glob, "/") {
		ok, _ := path.Match(glob, name)
		return ok
	}
	ok, _ := path.Match(glob, rel)
	return ok
}
