// Package storage persists small keyed records in named buckets.
// Backends: a JSON file per bucket, or a Redis hash per bucket.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("storage closed")

// Backend stores opaque records by bucket and id.
type Backend interface {
	// Load returns every record of a bucket. A missing bucket is empty.
	Load(ctx context.Context, bucket string) (map[string][]byte, error)
	// Put creates or replaces one record.
	Put(ctx context.Context, bucket, id string, value []byte) error
	// Delete removes one record. Missing records are not an error.
	Delete(ctx context.Context, bucket, id string) error
	// Clear removes a whole bucket.
	Clear(ctx context.Context, bucket string) error
	Close() error
}
