// Package cache implements the two-tier cache used for provider results.
package cache

import (
	"context"
	"time"
)

// Entry is one cached value with its freshness window
type Entry[T any] struct {
	Data     T
	StoredAt time.Time
	TTL      time.Duration
}

// Expired reports whether the entry's ttl has elapsed at now
func (e Entry[T]) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}

// Tier is the contract shared by the fast and durable tiers.
// skipTTL returns expired entries on Get and skips housekeeping on Put.
type Tier[T any] interface {
	Get(ctx context.Context, key string, skipTTL bool) (T, bool, error)
	Put(ctx context.Context, key string, data T, skipTTL bool) error
	Clear(ctx context.Context) error
}
