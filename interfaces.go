// interfaces.go
// Core interfaces for querycache: Fetcher, Store.
// These are public and intended for use by consumers and store driver developers.

package querycache

import (
	"context"
	"time"
)

// Fetcher loads the current server truth for a key. It is invoked by the
// cache with a detached, timeout-bounded context so that an unsubscribing
// consumer does not abort an in-flight request (the result still warms the
// cache). Fetchers for queries must be idempotent reads; the cache may retry
// them with backoff.
type Fetcher func(ctx context.Context, key Key) (interface{}, error)

// Store defines the interface for optional second-level store drivers
// (Redis, SQLite). The cache consults the store before the first fetch of a
// cold entry, writes every successful fetch through, and deletes rows on
// invalidation. Evicted in-memory entries keep their store rows so a later
// remount can still warm-start.
//
// Get must return ErrNotFound for missing or expired keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Stats holds cache operation counters for monitoring.
type Stats struct {
	Counters map[string]int // Operation name to count
}
