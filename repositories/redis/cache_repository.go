package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upb/market-gateway/repositories"
)

var errCorruptEntry = errors.New("corrupt cache entry")

// cacheDocument is the stored form of a cache record
type cacheDocument struct {
	Payload  []byte    `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
	TTLMs    int64     `json:"ttl_ms"`
}

// CacheRepository keeps one key per slot plus a slot index set per cache
type CacheRepository struct {
	client *Client
}

// NewCacheRepository creates a new cache repository
func NewCacheRepository(client *Client) repositories.CacheRepository {
	return &CacheRepository{client: client}
}

func (r *CacheRepository) entryKey(cache, slot string) string {
	return r.client.key("cache", cache, "entry", slot)
}

func (r *CacheRepository) indexKey(cache string) string {
	return r.client.key("cache", cache, "slots")
}

// Get retrieves one entry, returning nil when absent
func (r *CacheRepository) Get(ctx context.Context, cache, slot string) (*repositories.CacheRecord, error) {
	return r.read(ctx, r.client.rdb, cache, slot)
}

// Put inserts or replaces one entry
func (r *CacheRepository) Put(ctx context.Context, record repositories.CacheRecord) error {
	data, err := json.Marshal(cacheDocument{
		Payload:  record.Payload,
		StoredAt: record.StoredAt.UTC(),
		TTLMs:    record.TTL.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	pipe := r.client.rdb.TxPipeline()
	pipe.Set(ctx, r.entryKey(record.Cache, record.Slot), data, 0)
	pipe.SAdd(ctx, r.indexKey(record.Cache), record.Slot)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// List returns every entry of a cache
func (r *CacheRepository) List(ctx context.Context, cache string) ([]repositories.CacheRecord, error) {
	slots, err := r.client.rdb.SMembers(ctx, r.indexKey(cache)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}

	records := make([]repositories.CacheRecord, 0, len(slots))
	for _, slot := range slots {
		record, err := r.read(ctx, r.client.rdb, cache, slot)
		if errors.Is(err, errCorruptEntry) {
			// removed by the next DeleteExpired
			r.client.logger.Warn("skipping corrupt cache entry", zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		if record != nil {
			records = append(records, *record)
		}
	}
	return records, nil
}

// DeleteExpired re-checks each entry under WATCH before removing it
func (r *CacheRepository) DeleteExpired(ctx context.Context, cache string, now time.Time) (int64, error) {
	slots, err := r.client.rdb.SMembers(ctx, r.indexKey(cache)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list cache entries: %w", err)
	}

	var deleted int64
	for _, slot := range slots {
		ok, err := r.deleteWhen(ctx, cache, slot, func(record *repositories.CacheRecord) bool {
			return record.Expired(now)
		})
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}

	if deleted > 0 {
		r.client.logger.Debug("expired cache entries deleted",
			zap.String("cache", cache),
			zap.Int64("count", deleted))
	}
	return deleted, nil
}

// DeleteIfUnchanged removes an entry only when nobody rewrote it since it was read
func (r *CacheRepository) DeleteIfUnchanged(ctx context.Context, cache, slot string, storedAt time.Time) (bool, error) {
	return r.deleteWhen(ctx, cache, slot, func(record *repositories.CacheRecord) bool {
		return record.StoredAt.Equal(storedAt)
	})
}

// Clear removes every entry of a cache
func (r *CacheRepository) Clear(ctx context.Context, cache string) error {
	slots, err := r.client.rdb.SMembers(ctx, r.indexKey(cache)).Result()
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}

	keys := make([]string, 0, len(slots)+1)
	for _, slot := range slots {
		keys = append(keys, r.entryKey(cache, slot))
	}
	keys = append(keys, r.indexKey(cache))

	if err := r.client.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func (r *CacheRepository) deleteWhen(ctx context.Context, cache, slot string, match func(*repositories.CacheRecord) bool) (bool, error) {
	key := r.entryKey(cache, slot)
	var deleted bool

	err := r.client.watch(ctx, func(tx *redis.Tx) error {
		deleted = false
		record, err := r.read(ctx, tx, cache, slot)
		corrupt := errors.Is(err, errCorruptEntry)
		if err != nil && !corrupt {
			return err
		}
		if record != nil && !match(record) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, r.indexKey(cache), slot)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = record != nil || corrupt
		return nil
	}, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return deleted, nil
}

func (r *CacheRepository) read(ctx context.Context, cmd getter, cache, slot string) (*repositories.CacheRecord, error) {
	data, err := cmd.Get(ctx, r.entryKey(cache, slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w %s/%s: %v", errCorruptEntry, cache, slot, err)
	}

	return &repositories.CacheRecord{
		Cache:    cache,
		Slot:     slot,
		Payload:  doc.Payload,
		StoredAt: doc.StoredAt.UTC(),
		TTL:      time.Duration(doc.TTLMs) * time.Millisecond,
	}, nil
}
