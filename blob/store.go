package blob

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound indicates the referenced object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey indicates a bucket or key that is empty or escapes the store root.
	ErrInvalidKey = errors.New("invalid bucket or key")
)

// Store is a minimal object store: durable, streamable, addressed by
// (bucket, key). Implementations must be safe for concurrent use.
type Store interface {
	// Put writes the object, replacing any existing content.
	Put(ctx context.Context, bucket, key string, r io.Reader) (int64, error)

	// Get opens the object for streaming reads.
	// Returns ErrNotFound if the object does not exist.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Stat returns the object size in bytes.
	// Returns ErrNotFound if the object does not exist.
	Stat(ctx context.Context, bucket, key string) (int64, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, key string) error
}
