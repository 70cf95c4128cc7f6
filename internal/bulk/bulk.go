package bulk

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"atelier/internal/catalog"
	"atelier/internal/logging"
	"atelier/internal/metrics"
)

const (
	defaultChunkSize  = 50
	defaultChunkDelay = 5 * time.Millisecond
)

var (
	// ErrInvalidAction is returned for an unknown action or a missing tag.
	ErrInvalidAction = errors.New("invalid bulk action")
	// ErrNothingToUndo is returned by Undo when no action is recorded.
	ErrNothingToUndo = errors.New("nothing to undo")
)

// Action is a bulk edit applied to a selection of entries.
type Action string

const (
	AddTag     Action = "add_tag"
	RemoveTag  Action = "remove_tag"
	Favorite   Action = "favorite"
	Unfavorite Action = "unfavorite"
	ClearTitle Action = "clear_title"

	// actions on the whole catalog, recorded for undo
	renameTag Action = "rename_tag"
	deleteTag Action = "delete_tag"
)

func (a Action) needsTag() bool {
	return a == AddTag || a == RemoveTag
}

func (a Action) valid() bool {
	switch a {
	case AddTag, RemoveTag, Favorite, Unfavorite, ClearTitle:
		return true
	}
	return false
}

// Store is the part of the catalog bulk edits use.
type Store interface {
	GetMany(ctx context.Context, ids []string) (map[string]catalog.Entry, error)
	BulkPut(ctx context.Context, entries []catalog.Entry) error
	IterateAll(ctx context.Context, fn func(catalog.Entry) error) error
}

// Config bounds how much is written per transaction.
type Config struct {
	ChunkSize  int
	ChunkDelay time.Duration
}

// DefaultConfig returns the default chunking.
func DefaultConfig() Config {
	return Config{ChunkSize: defaultChunkSize, ChunkDelay: defaultChunkDelay}
}

// Outcome reports what a bulk operation did.
type Outcome struct {
	Action    Action `json:"action"`
	Requested int    `json:"requested"`
	Changed   int    `json:"changed"`
	NotFound  int    `json:"notFound"`
}

// UndoInfo describes the action Undo would revert.
type UndoInfo struct {
	Action  Action    `json:"action"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
	Entries int       `json:"entries"`
}

type snapshot struct {
	info     UndoInfo
	preImage []catalog.Entry
}

// Editor applies bulk edits and remembers the pre-image of the last one.
// Operations are serialized; each chunk commits atomically, so an operation
// interrupted part way leaves its earlier chunks applied and undoable.
type Editor struct {
	store Store
	cfg   Config
	now   func() time.Time

	mu   sync.Mutex
	last *snapshot
}

// New creates an Editor. A zero chunk size takes the default.
func New(store Store, cfg Config) *Editor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkDelay < 0 {
		cfg.ChunkDelay = 0
	}
	return &Editor{store: store, cfg: cfg, now: time.Now}
}

// Apply runs action over ids. Ids missing from the catalog are counted, not
// treated as errors. Entries the action would not change are not written.
func (e *Editor) Apply(ctx context.Context, ids []string, action Action, tag string) (Outcome, error) {
	if !action.valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	tag = catalog.NormalizeTag(tag)
	if action.needsTag() && tag == "" {
		return Outcome{}, fmt.Errorf("%w: %s requires a tag", ErrInvalidAction, action)
	}

	ids = dedupe(ids)
	out := Outcome{Action: action, Requested: len(ids)}

	e.mu.Lock()
	defer e.mu.Unlock()

	found, err := e.store.GetMany(ctx, ids)
	if err != nil {
		return out, fmt.Errorf("failed to load selection: %w", err)
	}
	out.NotFound = len(ids) - len(found)

	var pre, post []catalog.Entry
	for _, id := range ids {
		en, ok := found[id]
		if !ok {
			continue
		}
		changed := en.Clone()
		if !edit(&changed, action, tag) {
			continue
		}
		pre = append(pre, en)
		post = append(post, changed)
	}

	n, err := e.commit(ctx, action, tag, pre, post)
	out.Changed = n
	return out, err
}

// edit applies action to en and reports whether anything changed.
func edit(en *catalog.Entry, action Action, tag string) bool {
	switch action {
	case AddTag:
		if en.HasTag(tag) {
			return false
		}
		en.Tags = catalog.NormalizeTags(append(en.Tags, tag))
	case RemoveTag:
		if !en.HasTag(tag) {
			return false
		}
		en.Tags = catalog.WithoutTag(en.Tags, tag)
	case Favorite, Unfavorite:
		want := action == Favorite
		if en.Favorite == want {
			return false
		}
		en.Favorite = want
	case ClearTitle:
		if en.TitleOverride == "" {
			return false
		}
		en.TitleOverride = ""
	}
	return true
}

// RenameTag replaces from with to on every entry carrying it. Entries that
// already carry to end up with a single copy.
func (e *Editor) RenameTag(ctx context.Context, from, to string) (Outcome, error) {
	from, to = catalog.NormalizeTag(from), catalog.NormalizeTag(to)
	if from == "" || to == "" {
		return Outcome{}, fmt.Errorf("%w: tag names cannot be empty", ErrInvalidAction)
	}
	if from == to {
		return Outcome{Action: renameTag}, nil
	}
	return e.global(ctx, renameTag, from+" -> "+to, from, func(en *catalog.Entry) {
		en.Tags = catalog.NormalizeTags(append(catalog.WithoutTag(en.Tags, from), to))
	})
}

// DeleteTag removes tag from every entry.
func (e *Editor) DeleteTag(ctx context.Context, tag string) (Outcome, error) {
	tag = catalog.NormalizeTag(tag)
	if tag == "" {
		return Outcome{}, fmt.Errorf("%w: tag name cannot be empty", ErrInvalidAction)
	}
	return e.global(ctx, deleteTag, tag, tag, func(en *catalog.Entry) {
		en.Tags = catalog.WithoutTag(en.Tags, tag)
	})
}

func (e *Editor) global(ctx context.Context, action Action, detail, tag string, fn func(*catalog.Entry)) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var pre, post []catalog.Entry
	err := e.store.IterateAll(ctx, func(en catalog.Entry) error {
		if !en.HasTag(tag) {
			return nil
		}
		changed := en.Clone()
		fn(&changed)
		pre = append(pre, en)
		post = append(post, changed)
		return nil
	})
	out := Outcome{Action: action, Requested: len(pre)}
	if err != nil {
		return out, fmt.Errorf("failed to scan catalog for tag %s: %w", tag, err)
	}

	n, err := e.commit(ctx, action, detail, pre, post)
	out.Changed = n
	return out, err
}

// commit writes post in chunks and records the pre-image of every chunk
// that committed. Caller holds e.mu.
func (e *Editor) commit(ctx context.Context, action Action, detail string, pre, post []catalog.Entry) (int, error) {
	if len(post) == 0 {
		metrics.BulkOperationsTotal.WithLabelValues(string(action), "noop").Inc()
		return 0, nil
	}

	written, err := e.putChunks(ctx, post)
	if written > 0 {
		e.last = &snapshot{
			info: UndoInfo{
				Action:  action,
				Detail:  detail,
				At:      e.now(),
				Entries: written,
			},
			preImage: pre[:written],
		}
	}
	metrics.BulkEntriesChanged.WithLabelValues(string(action)).Add(float64(written))

	if err != nil {
		metrics.BulkOperationsTotal.WithLabelValues(string(action), "error").Inc()
		logging.Warn("Bulk %s stopped after %d of %d entries: %v", action, written, len(post), err)
		return written, err
	}
	metrics.BulkOperationsTotal.WithLabelValues(string(action), "success").Inc()
	logging.Info("Bulk %s changed %d entries", action, written)
	return written, nil
}

// putChunks writes entries chunk by chunk, pausing between chunks, and
// returns how many were committed.
func (e *Editor) putChunks(ctx context.Context, entries []catalog.Entry) (int, error) {
	written := 0
	for chunk := range slices.Chunk(entries, e.cfg.ChunkSize) {
		if written > 0 && e.cfg.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-time.After(e.cfg.ChunkDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := e.store.BulkPut(ctx, chunk); err != nil {
			return written, fmt.Errorf("failed to write chunk: %w", err)
		}
		metrics.BulkChunksTotal.Inc()
		written += len(chunk)
	}
	return written, nil
}

// LastAction describes what Undo would revert.
func (e *Editor) LastAction() (UndoInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return UndoInfo{}, false
	}
	return e.last.info, true
}

// Undo writes back the pre-image of the last action and forgets it. If the
// restore fails part way the record is kept so Undo can be retried.
//
// Pre-images are whole records, so Undo also reverts anything changed on
// those entries since the action (edits, refreshed paths) and restores
// entries deleted since.
func (e *Editor) Undo(ctx context.Context) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.last == nil {
		return Outcome{}, ErrNothingToUndo
	}
	snap := e.last
	out := Outcome{Action: "undo_" + snap.info.Action, Requested: len(snap.preImage)}

	n, err := e.putChunks(ctx, snap.preImage)
	out.Changed = n
	if err != nil {
		metrics.BulkOperationsTotal.WithLabelValues("undo", "error").Inc()
		return out, err
	}
	e.last = nil
	metrics.BulkOperationsTotal.WithLabelValues("undo", "success").Inc()
	logging.Info("Undid %s on %d entries", snap.info.Action, n)
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
