package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrS3NotConfigured is returned when S3 operations are attempted
// without proper configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// Local implements the Storage interface using local disk.
// Output files live in a configurable directory and are reclaimed by the
// task layer's retention sweep.
type Local struct {
	dir string
}

// Compile-time check that Local implements Storage.
var _ Storage = (*Local)(nil)

// NewLocal creates a new Local storage instance.
// If dir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "videogen")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	return &Local{dir: dir}, nil
}

// Dir returns the output directory path.
func (s *Local) Dir() string {
	return s.dir
}

// OutputPath returns the path a new output file should be written to.
func (s *Local) OutputPath(name string) string {
	return filepath.Join(s.dir, name)
}

// Open opens a stored file for reading.
// The caller is responsible for closing the returned ReadCloser.
func (s *Local) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	return f, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (s *Local) Remove(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove output file %s: %w", path, err)
	}
	return nil
}

// UploadToS3 is not supported by Local and returns ErrS3NotConfigured.
func (s *Local) UploadToS3(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}
