// Package kv defines the byte-oriented key-value store behind the result
// cache and its backends.
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv store closed")

// Store is a flat key-value namespace. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// ListKeys returns every key with the given prefix in lexical order.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
