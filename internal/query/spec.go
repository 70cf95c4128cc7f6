package query

import (
	"slices"
	"strings"

	"atelier/internal/catalog"
)

// MaxPage is the highest page number a query accepts; larger values are
// clamped to it.
const MaxPage = 1 << 24

// SortOrder orders results by insertion time.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// Valid reports whether o is a known order.
func (o SortOrder) Valid() bool {
	return o == SortNewest || o == SortOldest
}

// TagMode says how required tags combine.
type TagMode string

const (
	// TagModeAll requires every tag.
	TagModeAll TagMode = "ALL"
	// TagModeAny requires at least one tag.
	TagModeAny TagMode = "ANY"
)

// Valid reports whether m is a known mode.
func (m TagMode) Valid() bool {
	return m == TagModeAll || m == TagModeAny
}

// RankMode orders a tag ranking.
type RankMode string

const (
	// RankPopular orders by count descending, then name.
	RankPopular RankMode = "popular"
	// RankAlpha orders by name.
	RankAlpha RankMode = "alpha"
)

// Valid reports whether m is a known ranking.
func (m RankMode) Valid() bool {
	return m == RankPopular || m == RankAlpha
}

// Spec describes one filtered, sorted page of the catalog. Zero values
// take the engine's settings defaults.
type Spec struct {
	Search        string    `json:"search,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	TagMode       TagMode   `json:"tagMode,omitempty"`
	MountID       string    `json:"mountId,omitempty"`
	FavoritesOnly bool      `json:"favoritesOnly,omitempty"`
	MinDuration   *float64  `json:"minDuration,omitempty"`
	MaxDuration   *float64  `json:"maxDuration,omitempty"`
	Sort          SortOrder `json:"sort,omitempty"`
	Page          int       `json:"page,omitempty"`
	PageSize      int       `json:"pageSize,omitempty"`
}

// Settings are the user preferences that shape queries and tag lists.
type Settings struct {
	PinnedTags      []string  `json:"pinnedTags" yaml:"pinned_tags" mapstructure:"pinned_tags"`
	DefaultSort     SortOrder `json:"defaultSort" yaml:"default_sort" mapstructure:"default_sort"`
	DefaultTagMode  TagMode   `json:"filterMode" yaml:"filter_mode" mapstructure:"filter_mode"`
	TagSort         RankMode  `json:"tagSort" yaml:"tag_sort" mapstructure:"tag_sort"`
	PageSizes       []int     `json:"pageSizes" yaml:"page_sizes" mapstructure:"page_sizes"`
	DefaultPageSize int       `json:"defaultPageSize" yaml:"default_page_size" mapstructure:"default_page_size"`
}

// DefaultSettings returns the out-of-the-box preferences.
func DefaultSettings() Settings {
	return Settings{
		PinnedTags:      []string{},
		DefaultSort:     SortNewest,
		DefaultTagMode:  TagModeAll,
		TagSort:         RankPopular,
		PageSizes:       []int{12, 20, 40},
		DefaultPageSize: 20,
	}
}

// Normalize replaces invalid fields with defaults. The default page size is
// forced into the allow-list.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	s.PinnedTags = catalog.NormalizeTags(s.PinnedTags)
	if !s.DefaultSort.Valid() {
		s.DefaultSort = def.DefaultSort
	}
	s.DefaultTagMode = TagMode(strings.ToUpper(string(s.DefaultTagMode)))
	if !s.DefaultTagMode.Valid() {
		s.DefaultTagMode = def.DefaultTagMode
	}
	if !s.TagSort.Valid() {
		s.TagSort = def.TagSort
	}

	sizes := make([]int, 0, len(s.PageSizes))
	for _, n := range s.PageSizes {
		if n > 0 && !slices.Contains(sizes, n) {
			sizes = append(sizes, n)
		}
	}
	slices.Sort(sizes)
	if len(sizes) == 0 {
		sizes = def.PageSizes
	}
	s.PageSizes = sizes
	if !slices.Contains(s.PageSizes, s.DefaultPageSize) {
		if slices.Contains(s.PageSizes, def.DefaultPageSize) {
			s.DefaultPageSize = def.DefaultPageSize
		} else {
			s.DefaultPageSize = s.PageSizes[0]
		}
	}
	return s
}

// AllowsPageSize reports whether n is one of the selectable page sizes.
func (s Settings) AllowsPageSize(n int) bool {
	return slices.Contains(s.PageSizes, n)
}

// resolve fills defaults and normalizes the tag set and search text.
func (s Settings) resolve(spec Spec) Spec {
	spec.Search = strings.ToLower(strings.TrimSpace(spec.Search))
	spec.Tags = catalog.NormalizeTags(spec.Tags)
	spec.TagMode = TagMode(strings.ToUpper(string(spec.TagMode)))
	if !spec.TagMode.Valid() {
		spec.TagMode = s.DefaultTagMode
	}
	if !spec.Sort.Valid() {
		spec.Sort = s.DefaultSort
	}
	spec.Page = min(max(spec.Page, 1), MaxPage)
	if spec.PageSize < 1 {
		spec.PageSize = s.DefaultPageSize
	}
	return spec
}
