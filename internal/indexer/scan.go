package indexer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"atelier/internal/catalog"
	"atelier/internal/filesystem"
	"atelier/internal/logging"
)

// ErrRootUnavailable means the mount root could not be opened or listed.
// Nothing is written when a scan fails this way.
var ErrRootUnavailable = errors.New("mount root unavailable")

// maxDepth bounds recursion so directory symlink loops terminate.
const maxDepth = 64

// ScanStats summarizes one scan.
type ScanStats struct {
	TotalFiles   int   `json:"totalFiles"`
	MatchedFiles int   `json:"matchedFiles"`
	Added        int   `json:"added"`
	Updated      int   `json:"updated"`
	Skipped      int   `json:"skipped"`
	DurationMs   int64 `json:"durationMs"`
}

// walker carries the state of one scan.
type walker struct {
	idx     *Indexer
	mount   catalog.Mount
	exts    map[string]bool
	stats   ScanStats
	pending []catalog.Entry
	seen    *atomic.Int64
}

// Scan reconciles the mount's directory tree into the catalog. Only a
// failure to open or list the root is returned as an error; everything else
// is counted in the stats. Entries whose files disappeared are left alone.
func (idx *Indexer) Scan(ctx context.Context, mount catalog.Mount) (ScanStats, error) {
	return idx.scan(ctx, mount, new(atomic.Int64))
}

func (idx *Indexer) scan(ctx context.Context, mount catalog.Mount, seen *atomic.Int64) (ScanStats, error) {
	start := time.Now()

	root, err := idx.opener.OpenRoot(ctx, mount)
	if err != nil {
		return ScanStats{}, fmt.Errorf("%w: %s: %v", ErrRootUnavailable, mount.Name, err)
	}

	w := &walker{
		idx:   idx,
		mount: mount,
		exts:  make(map[string]bool, len(mount.Extensions)),
		seen:  seen,
	}
	for _, e := range catalog.NormalizeExtensions(mount.Extensions) {
		w.exts[e] = true
	}

	rootEntries, err := root.Entries(ctx)
	if err != nil {
		return ScanStats{}, fmt.Errorf("%w: %s: %v", ErrRootUnavailable, mount.Name, err)
	}

	err = w.walkEntries(ctx, rootEntries, "", 0)
	if err == nil {
		err = w.flush(ctx)
	}
	w.stats.DurationMs = time.Since(start).Milliseconds()
	return w.stats, err
}

func (w *walker) walkDir(ctx context.Context, dir filesystem.Dir, rel string, depth int) error {
	if depth > maxDepth {
		logging.Warn("Scan %s: %s exceeds depth %d, skipping", w.mount.Name, rel, maxDepth)
		w.stats.Skipped++
		return nil
	}
	entries, err := dir.Entries(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logging.Warn("Scan %s: cannot list %s: %v", w.mount.Name, rel, err)
		w.stats.Skipped++
		return nil
	}
	return w.walkEntries(ctx, entries, rel, depth)
}

func (w *walker) walkEntries(ctx context.Context, entries []filesystem.DirEntry, relDir string, depth int) error {
	for _, de := range entries {
		if strings.HasPrefix(de.Name, ".") {
			continue
		}
		rel := de.Name
		if relDir != "" {
			rel = path.Join(relDir, de.Name)
		}

		switch de.Kind {
		case filesystem.KindDirectory:
			if !w.mount.IncludeSubdirs || de.Dir == nil || ignored(w.mount.IgnoreGlobs, rel, de.Name) {
				w.stats.Skipped++
				continue
			}
			if err := w.walkDir(ctx, de.Dir, rel, depth+1); err != nil {
				return err
			}

		case filesystem.KindFile:
			w.stats.TotalFiles++
			w.seen.Add(1)
			if de.File == nil || ignored(w.mount.IgnoreGlobs, rel, de.Name) || !w.exts[catalog.Extension(de.Name)] {
				w.stats.Skipped++
				continue
			}
			w.stats.MatchedFiles++
			w.pending = append(w.pending, w.discovered(de, rel))
			if len(w.pending) >= w.idx.cfg.BatchSize {
				if err := w.flush(ctx); err != nil {
					return err
				}
			}

		default:
			logging.Debug("Scan %s: skipping %s (%s)", w.mount.Name, rel, de.Kind)
			w.stats.Skipped++
		}
	}
	return nil
}

func (w *walker) discovered(de filesystem.DirEntry, rel string) catalog.Entry {
	return catalog.Entry{
		ID:           catalog.EntryID(w.mount.ID, rel),
		MountID:      w.mount.ID,
		RelativePath: rel,
		Filename:     de.Name,
		SourceKind:   catalog.SourceHandle,
		SourceRef:    de.File.Ref(),
		Tags:         []string{},
		AddedAt:      w.idx.now().UnixMilli(),
	}
}

// flush commits the pending batch. A failed batch is retried one entry at a
// time so a single bad record only costs itself.
func (w *walker) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	batch := w.pending
	w.pending = nil

	res, err := w.idx.store.UpsertPaths(ctx, batch)
	if err == nil {
		w.stats.Added += len(res.Added)
		w.stats.Updated += len(res.Updated)
	} else {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logging.Warn("Scan %s: batch of %d failed, retrying individually: %v", w.mount.Name, len(batch), err)
		for _, e := range batch {
			one, err := w.idx.store.UpsertPaths(ctx, []catalog.Entry{e})
			if err != nil {
				logging.Warn("Scan %s: skipping %s: %v", w.mount.Name, e.RelativePath, err)
				w.stats.Skipped++
				continue
			}
			w.stats.Added += len(one.Added)
			w.stats.Updated += len(one.Updated)
		}
	}

	if gate := w.idx.cfg.Gate; gate != nil {
		if err := gate.Wait(ctx); err != nil {
			return err
		}
	}
	if w.idx.cfg.BatchDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(w.idx.cfg.BatchDelay):
		return nil
	}
}
