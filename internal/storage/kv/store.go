package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv store closed")

// Store is an asynchronous-friendly string-keyed blob store. Values are opaque
// to the store; callers own the encoding.
type Store interface {
	// Get returns the value under key. found is false when the key was never
	// written or has been deleted.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set replaces the value under key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}
