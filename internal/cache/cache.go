// Package cache provides the response cache shared by the interactive client
// path and the sync engine. Entries are opaque blobs with a per-entry TTL;
// the status-aware TTL policy lives with the callers (mls package).
package cache

import (
	"context"
	"time"
)

type Stats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Sets      uint64 `json:"sets"`
}

// Cache is the pluggable store. Get honors the strict freshness contract: a
// stale entry is a miss. GetStale additionally returns entries past their
// TTL and exists only for the stale-while-revalidate fallback path.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	GetStale(ctx context.Context, key string) (data []byte, ok bool, fresh bool)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Cleanup(ctx context.Context) int
	Stats(ctx context.Context) Stats
}
