package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Download when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines the interface for object storage operations.
// Catalog files are read through Download as a stream; they are never
// loaded whole into memory.
type ObjectStorage interface {
	// Upload stores an object
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens a stream over an object; the caller closes it
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Delete deletes an object
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// EnsureBucket prepares the backing bucket, creating it when allowed
	EnsureBucket(ctx context.Context) error
}
