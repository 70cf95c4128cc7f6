package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EntryStore is what single-entry edits need.
type EntryStore interface {
	Get(ctx context.Context, id string) (Entry, error)
	Put(ctx context.Context, e Entry) error
}

// Update reads an entry, applies fn and writes it back. fn must not keep
// references to the entry.
//
// The read and the write are separate store calls, so concurrent updates of
// one entry are last writer wins: an edit made between them is overwritten,
// and an entry deleted between them is written back.
func Update(ctx context.Context, s EntryStore, id string, fn func(*Entry)) (Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	fn(&e)
	e.Tags = NormalizeTags(e.Tags)
	if err := s.Put(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("failed to update entry %s: %w", id, err)
	}
	return e, nil
}

// SetTags replaces an entry's tags with the normalized form of tags.
func SetTags(ctx context.Context, s EntryStore, id string, tags []string) (Entry, error) {
	return Update(ctx, s, id, func(e *Entry) { e.Tags = tags })
}

// AddTag adds one normalized tag.
func AddTag(ctx context.Context, s EntryStore, id, tag string) (Entry, error) {
	t := NormalizeTag(tag)
	if t == "" {
		return Entry{}, fmt.Errorf("invalid tag %q", tag)
	}
	return Update(ctx, s, id, func(e *Entry) { e.Tags = append(e.Tags, t) })
}

// RemoveTag removes one tag if present.
func RemoveTag(ctx context.Context, s EntryStore, id, tag string) (Entry, error) {
	t := NormalizeTag(tag)
	return Update(ctx, s, id, func(e *Entry) { e.Tags = WithoutTag(e.Tags, t) })
}

// WithoutTag returns tags minus tag, preserving order.
func WithoutTag(tags []string, tag string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}

// SetFavorite sets the favorite flag.
func SetFavorite(ctx context.Context, s EntryStore, id string, favorite bool) (Entry, error) {
	return Update(ctx, s, id, func(e *Entry) { e.Favorite = favorite })
}

// SetTitleOverride sets the title override; blank input clears it.
func SetTitleOverride(ctx context.Context, s EntryStore, id, title string) (Entry, error) {
	return Update(ctx, s, id, func(e *Entry) { e.TitleOverride = strings.TrimSpace(title) })
}

// SetThumbnail stores an opaque thumbnail reference; "" removes it.
func SetThumbnail(ctx context.Context, s EntryStore, id, ref string) (Entry, error) {
	return Update(ctx, s, id, func(e *Entry) { e.Thumbnail = ref })
}

// SetDuration records the media duration; nil clears it.
func SetDuration(ctx context.Context, s EntryStore, id string, seconds *float64) (Entry, error) {
	if seconds != nil && *seconds < 0 {
		return Entry{}, fmt.Errorf("duration must not be negative: %v", *seconds)
	}
	return Update(ctx, s, id, func(e *Entry) { e.DurationSec = seconds })
}

// RecordPlay bumps the play counter and stamps the play time.
func RecordPlay(ctx context.Context, s EntryStore, id string, at time.Time) (Entry, error) {
	ms := at.UnixMilli()
	return Update(ctx, s, id, func(e *Entry) {
		e.PlayCount++
		e.LastPlayedAt = &ms
	})
}
