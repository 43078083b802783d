package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/upb/market-gateway/models"
)

// ErrConflict is returned when an optimistic update kept losing to concurrent writers
var ErrConflict = errors.New("concurrent update conflict")

// TransactionManager runs work inside a database transaction
type TransactionManager interface {
	// InTransaction runs fn with a context bound to a new transaction.
	// It commits if fn succeeds and rolls back on error.
	InTransaction(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error
}

// UsageMutation computes the next usage from the current one.
// The result is persisted only when apply is true.
type UsageMutation func(current models.LimitUsage) (next models.LimitUsage, apply bool)

// UsageRepository stores one LimitUsage per provider
type UsageRepository interface {
	// Get returns the stored usage, or the zero value if none exists yet
	Get(ctx context.Context, id models.ProviderID) (models.LimitUsage, error)

	// Update atomically reads, mutates and writes the usage of one provider.
	// It returns the resulting usage and whether the mutation was applied.
	Update(ctx context.Context, id models.ProviderID, fn UsageMutation) (models.LimitUsage, bool, error)

	// List returns the usage of every provider seen so far
	List(ctx context.Context) (map[models.ProviderID]models.LimitUsage, error)
}

// CacheRecord is one persisted cache entry
type CacheRecord struct {
	Cache    string
	Slot     string
	Payload  []byte
	StoredAt time.Time
	TTL      time.Duration
}

// Expired reports whether the record is past its ttl at now
func (r CacheRecord) Expired(now time.Time) bool {
	return now.Sub(r.StoredAt) >= r.TTL
}

// CacheRepository persists durable cache entries per cache name
type CacheRepository interface {
	// Get returns the record at slot, or nil if absent
	Get(ctx context.Context, cache, slot string) (*CacheRecord, error)

	// Put inserts or replaces a record
	Put(ctx context.Context, record CacheRecord) error

	// List returns every record of a cache
	List(ctx context.Context, cache string) ([]CacheRecord, error)

	// DeleteExpired removes records that are expired at now, checking expiry at delete time
	DeleteExpired(ctx context.Context, cache string, now time.Time) (int64, error)

	// DeleteIfUnchanged removes a record only if it still carries storedAt
	DeleteIfUnchanged(ctx context.Context, cache, slot string, storedAt time.Time) (bool, error)

	// Clear removes every record of a cache
	Clear(ctx context.Context, cache string) error
}

// StatsRepository stores monthly provider counters
type StatsRepository interface {
	// Increment adds deltas to one counter row, creating it if needed
	Increment(ctx context.Context, month string, provider models.ProviderID, operation models.Operation, selections, failures int64) error

	// ListMonth returns every counter row of a month
	ListMonth(ctx context.Context, month string) ([]models.ProviderStat, error)
}

// HealthChecker probes a durable store
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Repositories is a container for all repositories
type Repositories struct {
	Usage  UsageRepository
	Cache  CacheRepository
	Stats  StatsRepository
	Health HealthChecker
}
