// Package blobstore abstracts where snapshot files live: local disk for
// embedded use, memory for tests, S3 or MinIO for shared storage.
// Snapshots are written and read as whole streams; there is no random
// access.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist. Implementations
// return an error satisfying errors.Is(err, ErrNotFound); the default
// maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// BlobStore stores named immutable byte streams.
type BlobStore interface {
	// Put writes a blob. The write is atomic: a concurrent Get sees
	// either the previous content or the new one, never a torn blob.
	Put(ctx context.Context, name string, r io.Reader) error

	// Get opens a blob for reading. The caller closes it.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
