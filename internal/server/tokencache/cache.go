// Package tokencache is the hot-path cache tier: download tokens resolved
// without touching the metadata database, plus cached usage-stats snapshots.
package tokencache

import (
	"context"
	"time"
)

// TokenKey builds the cache key holding the file id for a download token.
func TokenKey(token string) string {
	return "token:" + token
}

// StatsKey is the cache key holding the serialized usage-stats snapshot.
const StatsKey = "usage_stats"

// Cache is a string key/value store with per-key TTLs. Get returns
// common.ErrNotFound for missing or expired keys.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
