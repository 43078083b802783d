package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/upb/market-gateway/repositories"
	"go.uber.org/zap"
)

// CacheRepository implements the repositories.CacheRepository interface
type CacheRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCacheRepository creates a new cache repository
func NewCacheRepository(db *DB, logger *zap.Logger) repositories.CacheRepository {
	return &CacheRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves one entry, returning nil when absent
func (r *CacheRepository) Get(ctx context.Context, cache, slot string) (*repositories.CacheRecord, error) {
	query := `
		SELECT payload, stored_at, ttl_ms
		FROM cache_entries
		WHERE cache_name = $1 AND slot = $2
	`

	executor := GetExecutor(ctx, r.db)
	record := &repositories.CacheRecord{Cache: cache, Slot: slot}
	var ttlMs int64

	err := executor.QueryRowContext(ctx, query, cache, slot).Scan(&record.Payload, &record.StoredAt, &ttlMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	record.StoredAt = record.StoredAt.UTC()
	record.TTL = time.Duration(ttlMs) * time.Millisecond
	return record, nil
}

// Put inserts or replaces one entry
func (r *CacheRepository) Put(ctx context.Context, record repositories.CacheRecord) error {
	query := `
		INSERT INTO cache_entries (cache_name, slot, payload, stored_at, ttl_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cache_name, slot) DO UPDATE
		SET payload = EXCLUDED.payload,
			stored_at = EXCLUDED.stored_at,
			ttl_ms = EXCLUDED.ttl_ms
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		record.Cache,
		record.Slot,
		record.Payload,
		record.StoredAt.UTC().Truncate(time.Microsecond),
		record.TTL.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}

	return nil
}

// List returns every entry of a cache
func (r *CacheRepository) List(ctx context.Context, cache string) ([]repositories.CacheRecord, error) {
	query := `
		SELECT slot, payload, stored_at, ttl_ms
		FROM cache_entries
		WHERE cache_name = $1
		ORDER BY stored_at
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, cache)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var records []repositories.CacheRecord
	for rows.Next() {
		record := repositories.CacheRecord{Cache: cache}
		var ttlMs int64
		if err := rows.Scan(&record.Slot, &record.Payload, &record.StoredAt, &ttlMs); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		record.StoredAt = record.StoredAt.UTC()
		record.TTL = time.Duration(ttlMs) * time.Millisecond
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache entries: %w", err)
	}

	return records, nil
}

// DeleteExpired removes entries whose ttl has elapsed at now
func (r *CacheRepository) DeleteExpired(ctx context.Context, cache string, now time.Time) (int64, error) {
	query := `
		DELETE FROM cache_entries
		WHERE cache_name = $1
		AND stored_at + ttl_ms * INTERVAL '1 millisecond' <= $2
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, cache, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows > 0 {
		r.logger.Debug("expired cache entries deleted",
			zap.String("cache", cache),
			zap.Int64("count", rows))
	}
	return rows, nil
}

// DeleteIfUnchanged removes an entry only when nobody rewrote it since it was read
func (r *CacheRepository) DeleteIfUnchanged(ctx context.Context, cache, slot string, storedAt time.Time) (bool, error) {
	query := `
		DELETE FROM cache_entries
		WHERE cache_name = $1 AND slot = $2 AND stored_at = $3
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, cache, slot, storedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to delete cache entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Clear removes every entry of a cache
func (r *CacheRepository) Clear(ctx context.Context, cache string) error {
	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = $1`, cache); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
