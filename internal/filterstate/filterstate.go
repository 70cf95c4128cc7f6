package filterstate

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"atelier/internal/catalog"
	"atelier/internal/query"
)

// Keys of the flat representation.
const (
	KeySearch    = "q"
	KeyTag       = "tag"
	KeyMount     = "m"
	KeyPage      = "p"
	KeySort      = "sort"
	KeyPageSize  = "ps"
	KeyDuration  = "len"
	KeyFavorites = "fav"
)

// Bucket is a named duration range.
type Bucket string

const (
	BucketAny    Bucket = "any"
	BucketUnder5 Bucket = "0-5"
	Bucket5To10  Bucket = "5-10"
	Bucket10To30 Bucket = "10-30"
	Bucket30To60 Bucket = "30-60"
	BucketOver60 Bucket = "60+"
)

const secondsPerMin = 60

var bucketBounds = map[Bucket][2]float64{
	BucketUnder5: {0, 5 * secondsPerMin},
	Bucket5To10:  {5 * secondsPerMin, 10 * secondsPerMin},
	Bucket10To30: {10 * secondsPerMin, 30 * secondsPerMin},
	Bucket30To60: {30 * secondsPerMin, 60 * secondsPerMin},
	BucketOver60: {60 * secondsPerMin, -1},
}

// Buckets lists every bucket in display order.
func Buckets() []Bucket {
	return []Bucket{BucketAny, BucketUnder5, Bucket5To10, Bucket10To30, Bucket30To60, BucketOver60}
}

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	if b == BucketAny {
		return true
	}
	_, ok := bucketBounds[b]
	return ok
}

// Bounds returns the bucket's range in seconds. The lower bound is
// inclusive and the upper exclusive; nil means unbounded.
func (b Bucket) Bounds() (lower, upper *float64) {
	r, ok := bucketBounds[b]
	if !ok {
		return nil, nil
	}
	lo := r[0]
	lower = &lo
	if r[1] >= 0 {
		hi := r[1]
		upper = &hi
	}
	return lower, upper
}

// State is the shareable part of a library view.
type State struct {
	Search    string          `json:"search"`
	Tags      []string        `json:"tags"`
	MountID   string          `json:"mountId"`
	Favorites bool            `json:"favorites"`
	Page      int             `json:"page"`
	Sort      query.SortOrder `json:"sort"`
	PageSize  int             `json:"pageSize"`
	Duration  Bucket          `json:"duration"`
}

// Codec maps State to and from its flat key/value form.
type Codec struct {
	pageSizes       []int
	defaultPageSize int
	defaultSort     query.SortOrder
}

// NewCodec builds a codec honoring the page size allow-list and default
// sort of settings.
func NewCodec(settings query.Settings) *Codec {
	s := settings.Normalize()
	return &Codec{
		pageSizes:       s.PageSizes,
		defaultPageSize: s.DefaultPageSize,
		defaultSort:     s.DefaultSort,
	}
}

// Default is the codec for the out-of-the-box settings.
var Default = NewCodec(query.DefaultSettings())

// Defaults returns the state of an unfiltered first page.
func (c *Codec) Defaults() State {
	return State{
		Tags:     []string{},
		Page:     1,
		Sort:     c.defaultSort,
		PageSize: c.defaultPageSize,
		Duration: BucketAny,
	}
}

// Normalize canonicalizes tags and clamps every field into its valid range.
func (c *Codec) Normalize(s State) State {
	s.Tags = catalog.NormalizeTags(s.Tags)
	s.Page = min(max(s.Page, 1), query.MaxPage)
	if !s.Sort.Valid() {
		s.Sort = c.defaultSort
	}
	if !slices.Contains(c.pageSizes, s.PageSize) {
		s.PageSize = c.defaultPageSize
	}
	if !s.Duration.Valid() {
		s.Duration = BucketAny
	}
	return s
}

// Encode renders the normalized state, leaving out every field that equals
// its default. Tags are emitted sorted and deduplicated.
func (c *Codec) Encode(s State) string {
	s = c.Normalize(s)

	var b strings.Builder
	add := func(k, v string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}

	if s.Search != "" {
		add(KeySearch, s.Search)
	}
	for _, t := range s.Tags {
		add(KeyTag, t)
	}
	if s.MountID != "" {
		add(KeyMount, s.MountID)
	}
	if s.Favorites {
		add(KeyFavorites, "1")
	}
	if s.Page != 1 {
		add(KeyPage, strconv.Itoa(s.Page))
	}
	if s.Sort != c.defaultSort {
		add(KeySort, string(s.Sort))
	}
	if s.PageSize != c.defaultPageSize {
		add(KeyPageSize, strconv.Itoa(s.PageSize))
	}
	if s.Duration != BucketAny {
		add(KeyDuration, string(s.Duration))
	}
	return b.String()
}

// Decode parses a flat representation. It never fails: malformed values
// fall back to defaults and unknown keys are ignored.
func (c *Codec) Decode(raw string) State {
	// ParseQuery keeps every pair it could parse alongside the error
	values, _ := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	return c.DecodeValues(values)
}

// DecodeValues is Decode for already parsed values, such as a request's
// query parameters.
func (c *Codec) DecodeValues(v url.Values) State {
	s := c.Defaults()
	s.Search = v.Get(KeySearch)
	s.Tags = v[KeyTag]
	s.MountID = v.Get(KeyMount)
	switch strings.ToLower(v.Get(KeyFavorites)) {
	case "1", "true", "yes":
		s.Favorites = true
	}
	if p, err := strconv.Atoi(v.Get(KeyPage)); err == nil {
		s.Page = p
	}
	if raw := v.Get(KeySort); raw != "" {
		s.Sort = query.SortOrder(strings.ToLower(raw))
	}
	if ps, err := strconv.Atoi(v.Get(KeyPageSize)); err == nil {
		s.PageSize = ps
	}
	if raw := v.Get(KeyDuration); raw != "" {
		s.Duration = Bucket(strings.ToLower(raw))
	}
	return c.Normalize(s)
}

// Spec converts the state to a query spec. Tag mode is left to the engine's
// settings.
func (s State) Spec() query.Spec {
	lo, hi := s.Duration.Bounds()
	return query.Spec{
		Search:        s.Search,
		Tags:          s.Tags,
		MountID:       s.MountID,
		FavoritesOnly: s.Favorites,
		MinDuration:   lo,
		MaxDuration:   hi,
		Sort:          s.Sort,
		Page:          s.Page,
		PageSize:      s.PageSize,
	}
}

// Encode renders s with the default codec.
func Encode(s State) string { return Default.Encode(s) }

// Decode parses raw with the default codec.
func Decode(raw string) State { return Default.Decode(raw) }

// Normalize canonicalizes s with the default codec.
func Normalize(s State) State { return Default.Normalize(s) }
