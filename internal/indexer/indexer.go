package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"atelier/internal/catalog"
	"atelier/internal/filesystem"
	"atelier/internal/logging"
	"atelier/internal/metrics"
	"atelier/internal/workers"
)

const (
	// Number of discovered files committed per transaction
	defaultBatchSize = 200

	// Delay between batches to allow other operations
	defaultBatchDelay = 10 * time.Millisecond

	scanMetaPrefix = "scan:"
)

// ErrScanInProgress is returned when a mount is already being scanned.
var ErrScanInProgress = errors.New("scan already in progress for mount")

// Store is the part of the catalog the scanner writes to.
type Store interface {
	UpsertPaths(ctx context.Context, entries []catalog.Entry) (catalog.UpsertResult, error)
	GetMount(ctx context.Context, id string) (catalog.Mount, error)
	ListMounts(ctx context.Context) ([]catalog.Mount, error)
	catalog.Meta
}

// Opener resolves a mount to its root directory capability.
type Opener interface {
	OpenRoot(ctx context.Context, m catalog.Mount) (filesystem.Dir, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, m catalog.Mount) (filesystem.Dir, error)

// OpenRoot calls f.
func (f OpenerFunc) OpenRoot(ctx context.Context, m catalog.Mount) (filesystem.Dir, error) {
	return f(ctx, m)
}

// OSOpener opens directory mounts on the local filesystem. URL mounts have
// no directory to enumerate.
func OSOpener(cfg filesystem.RetryConfig) Opener {
	return OpenerFunc(func(ctx context.Context, m catalog.Mount) (filesystem.Dir, error) {
		if m.SourceKind != catalog.SourceHandle {
			return nil, filesystem.ErrUnsupported
		}
		if m.Root == "" {
			return nil, errors.New("mount has no root directory")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return filesystem.OpenDir(m.Root, cfg)
	})
}

// Gate holds scans back between batches, for example under memory
// pressure.
type Gate interface {
	Wait(ctx context.Context) error
}

// Config tunes batching and parallelism.
type Config struct {
	BatchSize  int
	BatchDelay time.Duration
	// Workers caps concurrent mount scans in ScanAll; 0 picks from CPU count.
	Workers int
	// Gate, when set, is waited on after every committed batch.
	Gate Gate
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BatchSize:  defaultBatchSize,
		BatchDelay: defaultBatchDelay,
	}
}

// Indexer runs reconciliation scans of mounts into the catalog.
type Indexer struct {
	store  Store
	opener Opener
	cfg    Config
	now    func() time.Time

	mu        sync.Mutex
	running   map[string]*scanState
	lastScan  time.Time
	startTime time.Time
}

type scanState struct {
	mountID   string
	name      string
	startedAt time.Time
	seen      atomic.Int64
}

// ScanProgress describes a scan that is still running.
type ScanProgress struct {
	MountID   string    `json:"mountId"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"startedAt"`
	FilesSeen int64     `json:"filesSeen"`
}

// ScanRecord is the persisted outcome of the last scan of a mount.
type ScanRecord struct {
	Stats      ScanStats `json:"stats"`
	FinishedAt time.Time `json:"finishedAt"`
	Error      string    `json:"error,omitempty"`
}

// ScanResult pairs a mount with the outcome of scanning it.
type ScanResult struct {
	MountID string    `json:"mountId"`
	Stats   ScanStats `json:"stats"`
	Error   string    `json:"error,omitempty"`
}

// HealthStatus contains scanner health information.
type HealthStatus struct {
	Scanning    bool           `json:"scanning"`
	ActiveScans []ScanProgress `json:"activeScans,omitempty"`
	LastScan    time.Time      `json:"lastScan,omitempty"`
	StartTime   time.Time      `json:"startTime"`
	Uptime      string         `json:"uptime"`
}

// New creates an Indexer. Zero config fields take their defaults.
func New(store Store, opener Opener, cfg Config) *Indexer {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	return &Indexer{
		store:     store,
		opener:    opener,
		cfg:       cfg,
		now:       time.Now,
		running:   make(map[string]*scanState),
		startTime: time.Now(),
	}
}

// tryStart registers a scan of mount, failing if one is already running.
func (idx *Indexer) tryStart(m catalog.Mount) (*scanState, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, busy := idx.running[m.ID]; busy {
		return nil, false
	}
	st := &scanState{mountID: m.ID, name: m.Name, startedAt: idx.now()}
	idx.running[m.ID] = st
	metrics.ScansInProgress.Inc()
	return st, true
}

func (idx *Indexer) finish(mountID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.running, mountID)
	idx.lastScan = idx.now()
	metrics.ScansInProgress.Dec()
}

// TryScan loads the mount and scans it unless a scan of the same mount is
// already running. The outcome is recorded in metadata and metrics.
func (idx *Indexer) TryScan(ctx context.Context, mountID string) (ScanStats, error) {
	m, err := idx.store.GetMount(ctx, mountID)
	if err != nil {
		return ScanStats{}, err
	}

	st, ok := idx.tryStart(m)
	if !ok {
		return ScanStats{}, fmt.Errorf("%w: %s", ErrScanInProgress, m.Name)
	}
	defer idx.finish(m.ID)

	logging.Info("Scanning mount %s (%s)", m.Name, m.Root)
	stats, err := idx.scan(ctx, m, &st.seen)
	idx.record(ctx, m, stats, err)
	return stats, err
}

func (idx *Indexer) record(ctx context.Context, m catalog.Mount, stats ScanStats, scanErr error) {
	status := "success"
	rec := ScanRecord{Stats: stats, FinishedAt: idx.now()}
	switch {
	case errors.Is(scanErr, ErrRootUnavailable):
		status = "root_unavailable"
		rec.Error = scanErr.Error()
		logging.Warn("Scan of %s failed: %v", m.Name, scanErr)
	case scanErr != nil:
		status = "error"
		rec.Error = scanErr.Error()
		logging.Error("Scan of %s aborted: %v", m.Name, scanErr)
	default:
		logging.Info("Scan of %s complete: %d files, %d matched, %d added, %d updated, %d skipped in %dms",
			m.Name, stats.TotalFiles, stats.MatchedFiles, stats.Added, stats.Updated, stats.Skipped, stats.DurationMs)
	}

	metrics.ScansTotal.WithLabelValues(status).Inc()
	metrics.ScanDuration.Observe(float64(stats.DurationMs) / 1000)
	metrics.ScanFilesTotal.WithLabelValues("added").Add(float64(stats.Added))
	metrics.ScanFilesTotal.WithLabelValues("updated").Add(float64(stats.Updated))
	metrics.ScanFilesTotal.WithLabelValues("skipped").Add(float64(stats.Skipped))
	metrics.ScanLastRunTimestamp.Set(float64(rec.FinishedAt.Unix()))

	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	// a cancelled scan still leaves a record
	if err := idx.store.SetMeta(context.WithoutCancel(ctx), scanMetaPrefix+m.ID, string(data)); err != nil {
		logging.Warn("Failed to record scan result for %s: %v", m.Name, err)
	}
}

// LastScan returns the recorded outcome of the most recent scan of mountID.
func (idx *Indexer) LastScan(ctx context.Context, mountID string) (ScanRecord, error) {
	raw, err := idx.store.GetMeta(ctx, scanMetaPrefix+mountID)
	if err != nil {
		return ScanRecord{}, err
	}
	var rec ScanRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return ScanRecord{}, fmt.Errorf("malformed scan record for %s: %w", mountID, err)
	}
	return rec, nil
}

// ScanAll scans every directory mount with bounded parallelism. Failures of
// one mount do not stop the others; each outcome is reported in the result.
func (idx *Indexer) ScanAll(ctx context.Context) ([]ScanResult, error) {
	mounts, err := idx.store.ListMounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mounts: %w", err)
	}

	var (
		mu      sync.Mutex
		results = make([]ScanResult, 0, len(mounts))
		g       errgroup.Group
	)
	g.SetLimit(workers.ForIO(idx.cfg.Workers))

	for _, m := range mounts {
		if m.SourceKind != catalog.SourceHandle {
			continue
		}
		g.Go(func() error {
			stats, err := idx.TryScan(ctx, m.ID)
			r := ScanResult{MountID: m.ID, Stats: stats}
			if err != nil {
				r.Error = err.Error()
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].MountID < results[j].MountID })
	return results, ctx.Err()
}

// Progress lists the scans currently running.
func (idx *Indexer) Progress() []ScanProgress {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make([]ScanProgress, 0, len(idx.running))
	for _, st := range idx.running {
		out = append(out, ScanProgress{
			MountID:   st.mountID,
			Name:      st.name,
			StartedAt: st.startedAt,
			FilesSeen: st.seen.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MountID < out[j].MountID })
	return out
}

// IsScanning reports whether any scan is running.
func (idx *Indexer) IsScanning() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.running) > 0
}

// GetHealthStatus returns scanner health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	active := idx.Progress()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	return HealthStatus{
		Scanning:    len(active) > 0,
		ActiveScans: active,
		LastScan:    idx.lastScan,
		StartTime:   idx.startTime,
		Uptime:      time.Since(idx.startTime).Round(time.Second).String(),
	}
}
