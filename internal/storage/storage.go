// Package storage provides output-file storage for generated videos.
// It defines the Storage port plus implementations for local disk and
// optional S3 delivery of finished outputs.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for output-file storage. The task layer
// allocates output paths here, streams completed files to clients, and
// removes files on delete and during the retention sweep.
type Storage interface {
	// OutputPath returns the path a new output file should be written to.
	OutputPath(name string) string

	// Open opens a stored file for reading.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Remove deletes a stored file. Removing a file that no longer exists
	// is not an error; delete and sweep may both reach for the same path.
	Remove(ctx context.Context, path string) error

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
