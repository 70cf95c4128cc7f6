package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an id is absent from the store.
var ErrNotFound = errors.New("not found")

// UpsertResult reports which ids an UpsertPaths call created or refreshed.
type UpsertResult struct {
	Added   []string
	Updated []string
}

// Stats summarizes catalog contents.
type Stats struct {
	TotalEntries   int `json:"totalEntries"`
	TotalMounts    int `json:"totalMounts"`
	TotalFavorites int `json:"totalFavorites"`
	TotalTags      int `json:"totalTags"`
}

// Reader is the read side of the catalog used by queries.
type Reader interface {
	Get(ctx context.Context, id string) (Entry, error)
	GetMany(ctx context.Context, ids []string) (map[string]Entry, error)
	// QueryRange returns the entries of one mount ordered by (added_at, id).
	QueryRange(ctx context.Context, mountID string) ([]Entry, error)
	// IterateAll visits every entry ordered by (added_at, id). Returning an
	// error from fn stops the iteration and is passed through.
	IterateAll(ctx context.Context, fn func(Entry) error) error
}

// Writer mutates entries. Every call is all or nothing.
type Writer interface {
	Put(ctx context.Context, e Entry) error
	BulkPut(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, id string) error
	// UpsertPaths inserts unknown ids as given and, for existing ids,
	// refreshes only the source and path fields.
	UpsertPaths(ctx context.Context, entries []Entry) (UpsertResult, error)
}

// Mounts manages mount records. Deleting a mount leaves its entries alone.
type Mounts interface {
	GetMount(ctx context.Context, id string) (Mount, error)
	PutMount(ctx context.Context, m Mount) error
	DeleteMount(ctx context.Context, id string) error
	ListMounts(ctx context.Context) ([]Mount, error)
}

// Meta is a small key/value area for bookkeeping.
type Meta interface {
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
}

// Watchable exposes a change counter bumped on every mutation.
type Watchable interface {
	Version() uint64
	Subscribe() (<-chan uint64, func())
}

// Store is the full catalog.
type Store interface {
	Reader
	Writer
	Mounts
	Meta
	Watchable
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
