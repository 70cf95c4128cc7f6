package media

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/crypto/blake2b"

	"atelier/internal/logging"
	"atelier/internal/metrics"
	"atelier/internal/workers"
)

const (
	DefaultWidth   = 480
	DefaultHeight  = 270
	DefaultQuality = 82

	refExt = ".jpg"
)

// ErrInvalidRef is returned for a reference this store could not have made.
var ErrInvalidRef = errors.New("invalid thumbnail reference")

// Config sizes generated thumbnails.
type Config struct {
	Width   int `mapstructure:"width" yaml:"width"`
	Height  int `mapstructure:"height" yaml:"height"`
	Quality int `mapstructure:"quality" yaml:"quality"`
}

// DefaultConfig is a 16:9 480x270 JPEG.
func DefaultConfig() Config {
	return Config{Width: DefaultWidth, Height: DefaultHeight, Quality: DefaultQuality}
}

// ThumbnailStore keeps thumbnails as JPEG files named by the BLAKE2b-256
// digest of their encoded bytes. Identical thumbnails share one file.
// Decoding and encoding run at most one per CPU at a time.
type ThumbnailStore struct {
	dir      string
	cfg      Config
	encoders chan struct{}
}

// NewThumbnailStore creates dir if needed.
func NewThumbnailStore(dir string, cfg Config) (*ThumbnailStore, error) {
	def := DefaultConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail dir: %w", err)
	}
	logging.Debug("Thumbnail store: %s (%dx%d q%d)", dir, cfg.Width, cfg.Height, cfg.Quality)
	return &ThumbnailStore{dir: dir, cfg: cfg, encoders: make(chan struct{}, workers.ForCPU(0))}, nil
}

// Dir returns the storage directory.
func (s *ThumbnailStore) Dir() string {
	return s.dir
}

// Save decodes an uploaded image, fits it inside the configured box and
// stores it as JPEG. The returned reference is what entries keep.
func (s *ThumbnailStore) Save(ctx context.Context, r io.Reader) (string, error) {
	ref, err := s.save(ctx, r)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ThumbnailsStoredTotal.WithLabelValues(status).Inc()
	return ref, err
}

func (s *ThumbnailStore) save(ctx context.Context, r io.Reader) (string, error) {
	data, err := readLimited(r)
	if err != nil {
		return "", err
	}
	select {
	case s.encoders <- struct{}{}:
		defer func() { <-s.encoders }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	img, format, err := decodeConstrained(data)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	thumb := imaging.Fit(img, s.cfg.Width, s.cfg.Height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(s.cfg.Quality)); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	sum := blake2b.Sum256(buf.Bytes())
	ref := hex.EncodeToString(sum[:]) + refExt
	path := filepath.Join(s.dir, ref)

	if _, err := os.Stat(path); err == nil {
		logging.Debug("Thumbnail %s already stored", ref)
		return ref, nil
	}
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to store thumbnail: %w", err)
	}
	b := thumb.Bounds()
	logging.Debug("Stored %s thumbnail %s (%dx%d, %d bytes)", format, ref, b.Dx(), b.Dy(), buf.Len())
	return ref, nil
}

// writeAtomic writes through a temp file so readers never see a partial
// thumbnail.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".thumb-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ValidRef reports whether ref has the shape of a stored thumbnail name.
func ValidRef(ref string) bool {
	name, ok := strings.CutSuffix(ref, refExt)
	if !ok || len(name) != 2*blake2b.Size256 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil && strings.ToLower(name) == name
}

func (s *ThumbnailStore) path(ref string) (string, error) {
	if !ValidRef(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(s.dir, ref), nil
}

// Open returns the stored JPEG for ref.
func (s *ThumbnailStore) Open(ref string) (*os.File, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Remove deletes a stored thumbnail. Removing a missing one is not an
// error.
func (s *ThumbnailStore) Remove(ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Prune deletes stored thumbnails for which inUse reports false and returns
// how many were removed.
func (s *ThumbnailStore) Prune(ctx context.Context, inUse func(ref string) bool) (int, error) {
	list, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, de := range list {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		ref := de.Name()
		if de.IsDir() || !ValidRef(ref) || inUse(ref) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to prune thumbnail %s: %v", ref, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logging.Info("Pruned %d unreferenced thumbnails", removed)
	}
	return removed, nil
}
