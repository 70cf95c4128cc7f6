package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
)

// Kind distinguishes directory listing entries.
type Kind int

const (
	// KindOther covers anything that is neither a regular file nor a directory.
	KindOther Kind = iota
	// KindFile is a regular file.
	KindFile
	// KindDirectory is a directory.
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "other"
	}
}

// DirEntry is one (name, kind, handle) triple yielded by a Dir. Exactly one
// of Dir or File is set for directories and files respectively.
type DirEntry struct {
	Name string
	Kind Kind
	Dir  Dir
	File File
}

// Dir enumerates a directory.
type Dir interface {
	Entries(ctx context.Context) ([]DirEntry, error)
}

// File opens a file's bytes on demand.
type File interface {
	Name() string
	// Ref is a stable locator persisted as the entry's source reference.
	Ref() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ErrUnsupported is returned when a source kind has no directory capability.
var ErrUnsupported = errors.New("source has no directory capability")

// OSDir is a Dir backed by the local filesystem.
type OSDir struct {
	path  string
	retry RetryConfig
}

// OpenDir returns a Dir for path after checking that it is a directory.
func OpenDir(path string, cfg RetryConfig) (*OSDir, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := StatWithRetry(abs, cfg)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	return &OSDir{path: abs, retry: cfg}, nil
}

// Path returns the absolute directory path.
func (d *OSDir) Path() string { return d.path }

// Entries lists the directory. Symlinks are resolved with a stat; ones that
// cannot be resolved are reported as KindOther.
func (d *OSDir) Entries(ctx context.Context) ([]DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	list, err := ReadDirWithRetry(d.path, d.retry)
	if err != nil {
		return nil, err
	}

	out := make([]DirEntry, 0, len(list))
	for _, de := range list {
		full := filepath.Join(d.path, de.Name())
		mode := de.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := StatWithRetry(full, d.retry)
			if err != nil {
				out = append(out, DirEntry{Name: de.Name(), Kind: KindOther})
				continue
			}
			mode = info.Mode().Type()
		}

		switch {
		case mode.IsDir():
			out = append(out, DirEntry{
				Name: de.Name(),
				Kind: KindDirectory,
				Dir:  &OSDir{path: full, retry: d.retry},
			})
		case mode.IsRegular():
			out = append(out, DirEntry{
				Name: de.Name(),
				Kind: KindFile,
				File: &OSFile{path: full, retry: d.retry},
			})
		default:
			out = append(out, DirEntry{Name: de.Name(), Kind: KindOther})
		}
	}
	return out, nil
}

// OSFile is a File on the local filesystem.
type OSFile struct {
	path  string
	retry RetryConfig
}

// NewOSFile wraps an absolute path.
func NewOSFile(path string, cfg RetryConfig) *OSFile {
	return &OSFile{path: path, retry: cfg}
}

// Name returns the base name.
func (f *OSFile) Name() string { return filepath.Base(f.path) }

// Ref returns the absolute path.
func (f *OSFile) Ref() string { return f.path }

// Open opens the file for reading.
func (f *OSFile) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := OpenWithRetry(f.path, f.retry)
	if err != nil {
		return nil, err
	}
	return file, nil
}
