// Package blob abstracts the object-storage tier holding encrypted payloads.
package blob

import (
	"context"
	"time"
)

// Object describes one stored blob, as seen by the orphan sweep.
type Object struct {
	Name         string
	Size         int64
	LastModified time.Time
}

// Store is the blob-tier contract. Implementations must treat deleting an
// absent object as success, since cleanup sweeps may run twice over the
// same candidate.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	// Get returns common.ErrNotFound when the object does not exist.
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	// List returns every object in the bucket.
	List(ctx context.Context) ([]Object, error)
}
