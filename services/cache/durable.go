package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/market-gateway/repositories"
)

// DurableTier persists JSON encoded entries in a CacheRepository
type DurableTier[T any] struct {
	name          string
	repo          repositories.CacheRepository
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *zap.Logger

	mu        sync.Mutex
	lastSweep time.Time
}

// NewDurableTier creates a DurableTier storing entries under the cache name.
// Put sweeps the store at most once per sweepInterval; zero sweeps on every Put.
func NewDurableTier[T any](name string, repo repositories.CacheRepository, ttl, sweepInterval time.Duration, now func() time.Time, logger *zap.Logger) *DurableTier[T] {
	if now == nil {
		now = time.Now
	}
	return &DurableTier[T]{
		name:          name,
		repo:          repo,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		now:           now,
		logger:        logger,
	}
}

// Name returns the cache name
func (d *DurableTier[T]) Name() string {
	return d.name
}

// Get returns the value stored under key.
// Expired and undecodable entries are removed and reported as a miss.
func (d *DurableTier[T]) Get(ctx context.Context, key string, skipTTL bool) (T, bool, error) {
	var zero T
	slot := Slot(key)

	record, err := d.repo.Get(ctx, d.name, slot)
	if err != nil {
		return zero, false, err
	}
	if record == nil {
		return zero, false, nil
	}

	if !skipTTL && record.Expired(d.now()) {
		d.discard(ctx, *record, "expired")
		return zero, false, nil
	}

	data, err := decode[T](record.Payload)
	if err != nil {
		d.logger.Warn("undecodable durable cache entry",
			zap.String("cache", d.name),
			zap.String("slot", slot),
			zap.Error(err))
		d.discard(ctx, *record, "undecodable")
		return zero, false, nil
	}

	return data, true, nil
}

// Put stores data under key stamped with the current time
func (d *DurableTier[T]) Put(ctx context.Context, key string, data T, skipTTL bool) error {
	if !skipTTL {
		d.maybeSweep(ctx)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s cache entry: %w", d.name, err)
	}

	return d.repo.Put(ctx, repositories.CacheRecord{
		Cache:    d.name,
		Slot:     Slot(key),
		Payload:  payload,
		StoredAt: d.now().UTC(),
		TTL:      d.ttl,
	})
}

// Clear removes every entry of this cache
func (d *DurableTier[T]) Clear(ctx context.Context) error {
	return d.repo.Clear(ctx, d.name)
}

// Sweep deletes expired and undecodable entries. Both deletes are
// conditional, so an entry rewritten concurrently survives.
func (d *DurableTier[T]) Sweep(ctx context.Context) (int64, error) {
	now := d.now()
	d.mu.Lock()
	d.lastSweep = now
	d.mu.Unlock()

	deleted, err := d.repo.DeleteExpired(ctx, d.name, now)
	if err != nil {
		return 0, err
	}

	records, err := d.repo.List(ctx, d.name)
	if err != nil {
		return deleted, err
	}

	for _, record := range records {
		if _, err := decode[T](record.Payload); err == nil {
			continue
		}
		ok, err := d.repo.DeleteIfUnchanged(ctx, d.name, record.Slot, record.StoredAt)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}

	if deleted > 0 {
		d.logger.Info("durable cache swept",
			zap.String("cache", d.name),
			zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

func (d *DurableTier[T]) maybeSweep(ctx context.Context) {
	d.mu.Lock()
	due := d.lastSweep.IsZero() || d.now().Sub(d.lastSweep) >= d.sweepInterval
	d.mu.Unlock()
	if !due {
		return
	}

	if _, err := d.Sweep(ctx); err != nil {
		d.logger.Warn("durable cache sweep failed",
			zap.String("cache", d.name),
			zap.Error(err))
	}
}

func (d *DurableTier[T]) discard(ctx context.Context, record repositories.CacheRecord, reason string) {
	if _, err := d.repo.DeleteIfUnchanged(ctx, d.name, record.Slot, record.StoredAt); err != nil {
		d.logger.Warn("failed to discard durable cache entry",
			zap.String("cache", d.name),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

func decode[T any](payload []byte) (T, error) {
	var data T
	err := json.Unmarshal(payload, &data)
	return data, err
}
