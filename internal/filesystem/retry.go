package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"atelier/internal/logging"
)

// VolumeResolver maps paths to volume labels by longest prefix.
type VolumeResolver struct {
	mounts []volumeMount
}

type volumeMount struct {
	path string // absolute, with trailing slash
	name string
}

// NewVolumeResolver builds a resolver from label → absolute path.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	mounts := make([]volumeMount, 0, len(volumes))
	for name, path := range volumes {
		absPath, err := filepath.Abs(path)
		if err != nil {
			absPath = path
		}
		if !strings.HasSuffix(absPath, "/") {
			absPath += "/"
		}
		mounts = append(mounts, volumeMount{path: absPath, name: name})
	}

	sort.Slice(mounts, func(i, j int) bool {
		return len(mounts[i].path) > len(mounts[j].path)
	})

	return &VolumeResolver{mounts: mounts}
}

// Resolve returns the label for path, or "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return "unknown"
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "unknown"
	}
	for _, m := range vr.mounts {
		if strings.HasPrefix(absPath+"/", m.path) {
			return m.name
		}
	}
	return "unknown"
}

// RetryConfig configures retries of operations that hit stale NFS handles.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func isStaleHandle(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}
	return false
}

// withRetry runs fn, retrying with capped exponential backoff while it
// fails with ESTALE. Other errors return immediately.
func withRetry[T any](op, path string, cfg RetryConfig, fn func() (T, error)) (T, error) {
	obs := observe()
	volume := cfg.VolumeResolver.Resolve(path)
	start := time.Now()
	backoff := cfg.InitialBackoff

	var (
		result T
		err    error
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", op, attempt, path)
				obs.ObserveRetrySuccess(op, volume)
			}
			obs.ObserveOperation(volume, op, time.Since(start).Seconds(), nil)
			return result, nil
		}
		if !isStaleHandle(err) {
			obs.ObserveOperation(volume, op, time.Since(start).Seconds(), err)
			return result, err
		}

		obs.ObserveStaleError(op, volume)
		if attempt < cfg.MaxRetries {
			obs.ObserveRetryAttempt(op, volume)
			logging.Debug("%s stale file handle for %s, retrying in %v (attempt %d/%d)",
				op, path, backoff, attempt+1, cfg.MaxRetries)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	logging.Warn("%s failed after %d retries for %s: %v", op, cfg.MaxRetries, path, err)
	obs.ObserveRetryFailure(op, volume)
	obs.ObserveOperation(volume, op, time.Since(start).Seconds(), err)
	return result, err
}

// StatWithRetry is os.Stat with stale-handle retries.
func StatWithRetry(path string, cfg RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, cfg, func() (os.FileInfo, error) { return os.Stat(path) })
}

// ReadDirWithRetry is os.ReadDir with stale-handle retries.
func ReadDirWithRetry(path string, cfg RetryConfig) ([]os.DirEntry, error) {
	return withRetry("readdir", path, cfg, func() ([]os.DirEntry, error) { return os.ReadDir(path) })
}

// OpenWithRetry is os.Open with stale-handle retries.
func OpenWithRetry(path string, cfg RetryConfig) (*os.File, error) {
	return withRetry("open", path, cfg, func() (*os.File, error) { return os.Open(path) })
}
