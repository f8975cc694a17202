// Package cache defines the port interface for the short-TTL read cache in
// front of the membership store. Values are caller-encoded bytes; the cache
// never outlives a membership write (writers must Delete affected keys).
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching with per-entry TTL.
type Cache interface {
	// Get retrieves a value. The second return is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value for at most ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
