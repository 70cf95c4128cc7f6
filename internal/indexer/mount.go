package indexer

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"atelier/internal/catalog"
	"atelier/internal/filesystem"
	"atelier/internal/mediatypes"
)

// ErrInvalidMount is returned by PrepareMount for a mount that cannot be
// registered.
var ErrInvalidMount = errors.New("invalid mount")

func invalidMount(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMount, fmt.Sprintf(format, args...))
}

// PrepareMount fills defaults into a mount about to be registered and checks
// it. A directory mount gets an absolute root that must be listable now;
// a URL mount needs an absolute http(s) base. Extensions default to every
// known audio and video type.
func PrepareMount(m catalog.Mount, retry filesystem.RetryConfig) (catalog.Mount, error) {
	m.Name = strings.TrimSpace(m.Name)
	m.Color = strings.TrimSpace(m.Color)
	if m.Name == "" {
		return m, invalidMount("name is required")
	}
	if m.SourceKind == "" {
		m.SourceKind = catalog.SourceHandle
	}
	if !m.SourceKind.Valid() {
		return m, invalidMount("unknown source kind %q", m.SourceKind)
	}
	if m.ID == "" {
		m.ID = catalog.NewMountID()
	}

	m.Extensions = catalog.NormalizeExtensions(m.Extensions)
	if len(m.Extensions) == 0 {
		m.Extensions = mediatypes.DefaultMountExtensions()
	}

	globs := make([]string, 0, len(m.IgnoreGlobs))
	for _, g := range m.IgnoreGlobs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		pattern := strings.TrimSuffix(strings.TrimPrefix(g, "**/"), "/**")
		if _, err := path.Match(pattern, ""); err != nil {
			return m, invalidMount("ignore pattern %q: %v", g, err)
		}
		globs = append(globs, g)
	}
	m.IgnoreGlobs = globs

	switch m.SourceKind {
	case catalog.SourceHandle:
		if strings.TrimSpace(m.Root) == "" {
			return m, invalidMount("root is required")
		}
		root, err := filepath.Abs(m.Root)
		if err != nil {
			return m, invalidMount("root %q: %v", m.Root, err)
		}
		if _, err := filesystem.OpenDir(root, retry); err != nil {
			return m, invalidMount("root is not a readable directory: %v", err)
		}
		m.Root = root
		m.BaseURL = ""
	case catalog.SourceURL:
		u, err := url.Parse(strings.TrimSpace(m.BaseURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return m, invalidMount("base URL must be an absolute http or https URL")
		}
		m.BaseURL = u.String()
		m.Root = ""
	}
	return m, nil
}
