package kv

import (
	"context"
	"time"
)

// Store is the typed client for the shared key-value service that holds
// all coordination state: rate-limit counters, index locks, checkpoints,
// fallback vectors, and cached query results.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	// Get retrieves the value stored under key.
	// Returns ErrKeyNotFound if the key has no live entry.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value under key. A ttl greater than zero expires the
	// entry automatically; a zero ttl stores it without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent atomically writes value only when key has no live entry.
	// Returns false when the key already exists or a concurrent writer won.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes the entry under key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// Scan visits every live entry whose key starts with prefix.
	// The value slice passed to fn is only valid for the duration of the
	// call; fn must copy it to retain it. Returning an error from fn
	// stops the scan.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error

	// Close closes the store and releases resources.
	Close() error
}
