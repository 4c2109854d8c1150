// Package cache implements the two-backend key/value cache used by the
// dashboard read path, together with the key derivation, read-through and
// invalidation helpers built on top of it.
//
// Backends implement Cache and deal in byte slices, leaving encoding to the
// caller. Store selects between a shared Redis backend and an in-process
// fallback and never reports backend errors to its callers: a failing backend
// degrades to a cache miss.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the cache.
var ErrNotFound = errors.New("cache: key not found")

// ErrClosed is returned when writing to a cache that has been closed.
var ErrClosed = errors.New("cache: closed")

// Cache abstracts a key-value cache with TTL support.
// All operations are safe for concurrent use.
type Cache interface {
	// Get retrieves the value associated with key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A zero TTL means the entry
	// does not expire. Setting an existing key replaces both value and TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache. It is not an error to delete
	// a key that does not exist.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the key exists and has not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Clear removes every key owned by this cache.
	Clear(ctx context.Context) error

	// Len returns the number of live keys owned by this cache.
	Len(ctx context.Context) (int, error)

	// Ping verifies connectivity to the underlying cache backend.
	Ping(ctx context.Context) error

	// Close releases all resources held by the cache implementation.
	Close() error
}
