// Package tiered implements a two-level (L1 + L2) cache adapter. The
// resolver uses it in multi-instance deployments: ristretto in process,
// NATS KV shared, so a membership invalidation on one instance removes the
// snapshot for all of them.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/opsdesk/opsdesk/internal/port/cache"
)

// Cache combines an L1 (in-process) and L2 (remote) cache. Reads treat the
// remote level as advisory: an L2 outage degrades to L1-only instead of
// failing lookups. Invalidation is the opposite, Delete always attempts
// both levels and reports any failure so a stale snapshot is never silently
// left behind.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New creates a tiered cache with the given L1 and L2 backends.
// l1Expire controls how long L2 backfill entries live in L1.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get checks L1, then L2, backfilling L1 on an L2 hit. L2 errors count as
// misses.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil || !found {
		return nil, false, nil
	}

	_ = c.l1.Set(ctx, key, val, c.l1Expire)
	return val, true, nil
}

// Set writes to both levels. The L1 write always happens; an L2 failure is
// reported so the caller can log the reduced sharing.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1Err := c.l1.Set(ctx, key, value, ttl)
	l2Err := c.l2.Set(ctx, key, value, ttl)
	return errors.Join(l1Err, l2Err)
}

// Delete removes the key from both levels unconditionally. A failure on
// either level is returned, an invalidation that only half-landed must not
// look successful.
func (c *Cache) Delete(ctx context.Context, key string) error {
	l1Err := c.l1.Delete(ctx, key)
	l2Err := c.l2.Delete(ctx, key)
	return errors.Join(l1Err, l2Err)
}
