package query

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"atelier/internal/catalog"
	"atelier/internal/logging"
	"atelier/internal/metrics"
)

// Source is the read side of the catalog plus its change notifications.
type Source interface {
	catalog.Reader
	catalog.Watchable
}

// Result is one page of a query.
type Result struct {
	Entries    []catalog.Entry `json:"entries"`
	TotalCount int             `json:"totalCount"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
	// Version is the store change version the result was computed at.
	Version uint64 `json:"version"`
}

// TagCount is a tag with the number of entries carrying it.
type TagCount struct {
	Tag    string `json:"tag"`
	Count  int    `json:"count"`
	Pinned bool   `json:"pinned,omitempty"`
}

// Engine evaluates filter specs against the catalog. It never writes and is
// safe to use concurrently with scans; a query running during a scan may see
// some of the scan's batches and not others.
type Engine struct {
	src      Source
	settings Settings
}

// New creates an Engine with the given preferences.
func New(src Source, settings Settings) *Engine {
	return &Engine{src: src, settings: settings.Normalize()}
}

// Settings returns the engine's normalized preferences.
func (e *Engine) Settings() Settings {
	return e.settings
}

// Query returns one page of the filtered set along with its total size.
func (e *Engine) Query(ctx context.Context, spec Spec) (Result, error) {
	start := time.Now()
	defer func() { metrics.QueryDuration.WithLabelValues("page").Observe(time.Since(start).Seconds()) }()

	spec = e.settings.resolve(spec)
	version := e.src.Version()

	matched, err := e.collect(ctx, spec, true)
	if err != nil {
		return Result{}, err
	}
	metrics.QueryResultsTotal.Observe(float64(len(matched)))

	return paginate(matched, spec.Page, spec.PageSize, version), nil
}

func paginate(matched []catalog.Entry, page, size int, version uint64) Result {
	res := Result{
		TotalCount: len(matched),
		Page:       page,
		PageSize:   size,
		TotalPages: (len(matched) + size - 1) / size,
		Version:    version,
	}
	// compare page numbers, not offsets, so a huge page cannot overflow
	if page < 1 || page > res.TotalPages {
		res.Entries = []catalog.Entry{}
		return res
	}
	skip := (page - 1) * size
	end := min(skip+size, len(matched))
	res.Entries = matched[skip:end]
	return res
}

// Matches returns the whole filtered set in result order.
func (e *Engine) Matches(ctx context.Context, spec Spec) ([]catalog.Entry, error) {
	start := time.Now()
	defer func() { metrics.QueryDuration.WithLabelValues("matches").Observe(time.Since(start).Seconds()) }()

	return e.collect(ctx, e.settings.resolve(spec), true)
}

// TagRanking counts tags over the entries that pass every predicate except
// the tag filter. An empty mode uses the configured tag sort.
func (e *Engine) TagRanking(ctx context.Context, spec Spec, mode RankMode) ([]TagCount, error) {
	start := time.Now()
	defer func() { metrics.QueryDuration.WithLabelValues("tags").Observe(time.Since(start).Seconds()) }()

	if !mode.Valid() {
		mode = e.settings.TagSort
	}
	matched, err := e.collect(ctx, e.settings.resolve(spec), false)
	if err != nil {
		return nil, err
	}
	return e.rank(matched, mode), nil
}

// AllTags counts every tag under a mount, or in the whole catalog when
// mountID is empty, in name order.
func (e *Engine) AllTags(ctx context.Context, mountID string) ([]TagCount, error) {
	return e.TagRanking(ctx, Spec{MountID: mountID}, RankAlpha)
}

func (e *Engine) rank(entries []catalog.Entry, mode RankMode) []TagCount {
	counts := make(map[string]int)
	for _, en := range entries {
		for _, t := range en.Tags {
			counts[t]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n, Pinned: slices.Contains(e.settings.PinnedTags, tag)})
	}
	sort.Slice(out, func(i, j int) bool {
		if mode == RankPopular && out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// collect reads the base range for the spec and applies the predicates in
// result order. withTags=false leaves out the tag filter.
func (e *Engine) collect(ctx context.Context, spec Spec, withTags bool) ([]catalog.Entry, error) {
	base, err := e.base(ctx, spec.MountID)
	if err != nil {
		return nil, err
	}
	if spec.Sort == SortNewest {
		slices.Reverse(base)
	}

	keep := predicate(spec, withTags)
	out := base[:0]
	for _, en := range base {
		if keep(en) {
			out = append(out, en)
		}
	}
	return out, nil
}

// base returns entries ordered by (added_at, id), from the per-mount range
// when a mount is given.
func (e *Engine) base(ctx context.Context, mountID string) ([]catalog.Entry, error) {
	if mountID != "" {
		return e.src.QueryRange(ctx, mountID)
	}
	var all []catalog.Entry
	err := e.src.IterateAll(ctx, func(en catalog.Entry) error {
		all = append(all, en)
		return nil
	})
	return all, err
}

// predicate builds the filter chain: favorites, duration, tags, search.
func predicate(spec Spec, withTags bool) func(catalog.Entry) bool {
	return func(en catalog.Entry) bool {
		if spec.FavoritesOnly && !en.Favorite {
			return false
		}
		if spec.MinDuration != nil || spec.MaxDuration != nil {
			if en.DurationSec == nil {
				return false
			}
			d := *en.DurationSec
			if spec.MinDuration != nil && d < *spec.MinDuration {
				return false
			}
			if spec.MaxDuration != nil && d >= *spec.MaxDuration {
				return false
			}
		}
		if withTags && len(spec.Tags) > 0 && !tagsMatch(en, spec.Tags, spec.TagMode) {
			return false
		}
		if spec.Search != "" && !searchMatch(en, spec.Search) {
			return false
		}
		return true
	}
}

func tagsMatch(en catalog.Entry, required []string, mode TagMode) bool {
	if mode == TagModeAny {
		for _, t := range required {
			if en.HasTag(t) {
				return true
			}
		}
		return false
	}
	for _, t := range required {
		if !en.HasTag(t) {
			return false
		}
	}
	return true
}

func searchMatch(en catalog.Entry, needle string) bool {
	if strings.Contains(strings.ToLower(en.Title()), needle) {
		return true
	}
	for _, t := range en.Tags {
		if strings.Contains(t, needle) {
			return true
		}
	}
	return false
}

// Watch emits the result for spec now and again after each store change
// until ctx is done. Changes that arrive while a result is being computed
// or delivered are coalesced into one re-evaluation.
func (e *Engine) Watch(ctx context.Context, spec Spec) <-chan Result {
	out := make(chan Result, 1)
	changes, cancel := e.src.Subscribe()
	metrics.QueryWatchers.Inc()

	go func() {
		defer close(out)
		defer metrics.QueryWatchers.Dec()
		defer cancel()

		var last uint64
		sent := false
		for {
			if v := e.src.Version(); !sent || v != last {
				res, err := e.Query(ctx, spec)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logging.Warn("Watch query failed: %v", err)
				} else {
					select {
					case out <- res:
						last, sent = res.Version, true
					case <-ctx.Done():
						return
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
		}
	}()
	return out
}
