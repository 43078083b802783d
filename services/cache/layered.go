package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/market-gateway/internal/observability"
	"github.com/upb/market-gateway/repositories"
)

const (
	tierFast    = "fast"
	tierDurable = "durable"
)

// Options configures one Layered cache
type Options[T any] struct {
	Size          int
	TTL           time.Duration
	SweepInterval time.Duration
	// Cacheable decides whether a fetched value is written through. Nil caches everything.
	Cacheable func(T) bool
	Now       func() time.Time
}

// Layered combines a fast in-process tier with an optional durable tier
type Layered[T any] struct {
	name      string
	fast      *MemoryTier[T]
	durable   *DurableTier[T]
	cacheable func(T) bool
	group     singleflight.Group
	metrics   observability.Metrics
	logger    *zap.Logger
}

// NewLayered creates a named cache. A nil repo disables the durable tier.
func NewLayered[T any](name string, opts Options[T], repo repositories.CacheRepository, metrics observability.Metrics, logger *zap.Logger) *Layered[T] {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}

	c := &Layered[T]{
		name:      name,
		fast:      NewMemoryTier[T](opts.Size, opts.TTL, opts.Now),
		cacheable: opts.Cacheable,
		metrics:   metrics,
		logger:    logger.With(zap.String("cache", name)),
	}
	if repo != nil {
		c.durable = NewDurableTier[T](name, repo, opts.TTL, opts.SweepInterval, opts.Now, c.logger)
	}
	return c
}

// Name returns the cache name
func (c *Layered[T]) Name() string {
	return c.name
}

// Get looks the key up in the fast tier, then the durable tier.
// A durable hit is copied into the fast tier.
func (c *Layered[T]) Get(ctx context.Context, key string) (T, bool) {
	if data, ok, _ := c.fast.Get(ctx, key, false); ok {
		c.metrics.RecordCacheLookup(c.name, tierFast, true)
		return data, true
	}
	c.metrics.RecordCacheLookup(c.name, tierFast, false)

	var zero T
	if c.durable == nil {
		return zero, false
	}

	data, ok, err := c.durable.Get(ctx, key, false)
	if err != nil {
		c.logger.Warn("durable cache read failed", zap.Error(err))
		return zero, false
	}
	c.metrics.RecordCacheLookup(c.name, tierDurable, ok)
	if !ok {
		return zero, false
	}

	_ = c.fast.Put(ctx, key, data, false)
	return data, true
}

// GetOrFetch returns the cached value or calls fetch once for all
// concurrent callers of the same cold key, writing the result through.
// The shared fetch outlives any single caller's cancellation; each caller
// stops waiting when its own context is done.
func (c *Layered[T]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	if data, ok := c.Get(ctx, key); ok {
		return data, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(Slot(key), func() (interface{}, error) {
		if data, ok, _ := c.fast.Get(fetchCtx, key, false); ok {
			return data, nil
		}

		data, err := fetch(fetchCtx)
		if err != nil {
			return data, err
		}
		if c.cacheable == nil || c.cacheable(data) {
			c.Put(fetchCtx, key, data)
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("coalesced cache fetch")
		}
		data, _ := res.Val.(T)
		return data, res.Err
	}
}

// Put writes through both tiers. Durable failures are logged.
func (c *Layered[T]) Put(ctx context.Context, key string, data T) {
	_ = c.fast.Put(ctx, key, data, false)

	if c.durable == nil {
		return
	}
	if err := c.durable.Put(ctx, key, data, false); err != nil {
		c.logger.Warn("durable cache write failed", zap.Error(err))
	}
}

// Clear empties both tiers
func (c *Layered[T]) Clear(ctx context.Context) error {
	_ = c.fast.Clear(ctx)
	if c.durable == nil {
		return nil
	}
	return c.durable.Clear(ctx)
}

// Sweep removes expired and undecodable durable entries
func (c *Layered[T]) Sweep(ctx context.Context) (int64, error) {
	if c.durable == nil {
		return 0, nil
	}
	return c.durable.Sweep(ctx)
}

// Stats returns fast tier statistics
func (c *Layered[T]) Stats() Stats {
	return c.fast.Stats()
}
