package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrConflict is returned when a write would map one (mount, path) pair to
// two different ids.
var ErrConflict = errors.New("mount path already bound to another id")

// MemoryStore is an in-process Store. Nothing survives a restart.
type MemoryStore struct {
	Notifier

	mu      sync.RWMutex
	entries map[string]Entry
	paths   map[string]string
	mounts  map[string]Mount
	meta    map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		paths:   make(map[string]string),
		mounts:  make(map[string]Mount),
		meta:    make(map[string]string),
	}
}

func pathKey(e Entry) (string, bool) {
	if e.MountID == "" || e.RelativePath == "" {
		return "", false
	}
	return e.MountID + "\x00" + e.RelativePath, true
}

// Get returns one entry.
func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e.Clone(), nil
}

// GetMany returns the entries present among ids.
func (s *MemoryStore) GetMany(_ context.Context, ids []string) (map[string]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Entry, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out[id] = e.Clone()
		}
	}
	return out, nil
}

// QueryRange returns a mount's entries in (added_at, id) order.
func (s *MemoryStore) QueryRange(_ context.Context, mountID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.MountID == mountID {
			out = append(out, e.Clone())
		}
	}
	sortByAdded(out)
	return out, nil
}

// IterateAll visits every entry in (added_at, id) order over a snapshot.
func (s *MemoryStore) IterateAll(ctx context.Context, fn func(Entry) error) error {
	s.mu.RLock()
	all := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e.Clone())
	}
	s.mu.RUnlock()

	sortByAdded(all)
	for _, e := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func sortByAdded(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AddedAt != entries[j].AddedAt {
			return entries[i].AddedAt < entries[j].AddedAt
		}
		return entries[i].ID < entries[j].ID
	})
}

// Put writes one entry.
func (s *MemoryStore) Put(ctx context.Context, e Entry) error {
	return s.BulkPut(ctx, []Entry{e})
}

// BulkPut writes all entries or none.
func (s *MemoryStore) BulkPut(_ context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPathsLocked(entries); err != nil {
		return err
	}
	for _, e := range entries {
		s.storeLocked(e)
	}
	s.Bump()
	return nil
}

func (s *MemoryStore) checkPathsLocked(entries []Entry) error {
	pending := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return errors.New("entry id is required")
		}
		key, ok := pathKey(e)
		if !ok {
			continue
		}
		if id, exists := s.paths[key]; exists && id != e.ID {
			if !batchHas(entries, id) {
				return fmt.Errorf("%w: %s", ErrConflict, e.RelativePath)
			}
		}
		if id, exists := pending[key]; exists && id != e.ID {
			return fmt.Errorf("%w: %s", ErrConflict, e.RelativePath)
		}
		pending[key] = e.ID
	}
	return nil
}

// batchHas reports whether the batch also rewrites id, which may move it
// off the contested path.
func batchHas(entries []Entry, id string) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (s *MemoryStore) storeLocked(e Entry) {
	if old, ok := s.entries[e.ID]; ok {
		if key, ok := pathKey(old); ok && s.paths[key] == e.ID {
			delete(s.paths, key)
		}
	}
	e = e.Clone()
	if e.Tags == nil {
		e.Tags = []string{}
	}
	s.entries[e.ID] = e
	if key, ok := pathKey(e); ok {
		s.paths[key] = e.ID
	}
}

// Delete removes one entry.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	if key, ok := pathKey(e); ok {
		delete(s.paths, key)
	}
	delete(s.entries, id)
	s.Bump()
	return nil
}

// UpsertPaths inserts new entries and refreshes path fields of existing ones.
func (s *MemoryStore) UpsertPaths(_ context.Context, entries []Entry) (UpsertResult, error) {
	var res UpsertResult
	if len(entries) == 0 {
		return res, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if existing, ok := s.entries[e.ID]; ok {
			existing.SourceKind = e.SourceKind
			existing.SourceRef = e.SourceRef
			existing.Filename = e.Filename
			existing.RelativePath = e.RelativePath
			existing.MountID = e.MountID
			merged = append(merged, existing)
			res.Updated = append(res.Updated, e.ID)
			continue
		}
		merged = append(merged, e)
		res.Added = append(res.Added, e.ID)
	}
	if err := s.checkPathsLocked(merged); err != nil {
		return UpsertResult{}, err
	}
	for _, e := range merged {
		s.storeLocked(e)
	}
	s.Bump()
	return res, nil
}

// GetMount returns one mount.
func (s *MemoryStore) GetMount(_ context.Context, id string) (Mount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mounts[id]
	if !ok {
		return Mount{}, ErrNotFound
	}
	return m, nil
}

// PutMount creates or replaces a mount.
func (s *MemoryStore) PutMount(_ context.Context, m Mount) error {
	if m.ID == "" {
		return errors.New("mount id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Extensions = append([]string(nil), m.Extensions...)
	m.IgnoreGlobs = append([]string(nil), m.IgnoreGlobs...)
	s.mounts[m.ID] = m
	s.Bump()
	return nil
}

// DeleteMount removes a mount record; its entries stay.
func (s *MemoryStore) DeleteMount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mounts[id]; !ok {
		return ErrNotFound
	}
	delete(s.mounts, id)
	s.Bump()
	return nil
}

// ListMounts returns mounts ordered by (added_at, id).
func (s *MemoryStore) ListMounts(_ context.Context) ([]Mount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Mount, 0, len(s.mounts))
	for _, m := range s.mounts {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt != out[j].AddedAt {
			return out[i].AddedAt < out[j].AddedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetMeta returns a metadata value.
func (s *MemoryStore) GetMeta(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.meta[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// SetMeta stores a metadata value.
func (s *MemoryStore) SetMeta(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

// Stats counts entries, mounts, favorites and distinct tags.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags := make(map[string]struct{})
	st := Stats{TotalEntries: len(s.entries), TotalMounts: len(s.mounts)}
	for _, e := range s.entries {
		if e.Favorite {
			st.TotalFavorites++
		}
		for _, t := range e.Tags {
			tags[t] = struct{}{}
		}
	}
	st.TotalTags = len(tags)
	return st, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
