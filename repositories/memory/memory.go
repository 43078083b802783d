// Package memory provides process-local repositories for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories"
)

// NewRepositories creates all repository instances backed by process memory
func NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Usage:  NewUsageRepository(),
		Cache:  NewCacheRepository(),
		Stats:  NewStatsRepository(),
		Health: healthy{},
	}
}

type healthy struct{}

func (healthy) HealthCheck(context.Context) error { return nil }

// UsageRepository keeps usage in a map guarded by a mutex
type UsageRepository struct {
	mu     sync.Mutex
	usages map[models.ProviderID]models.LimitUsage
}

// NewUsageRepository creates an empty usage repository
func NewUsageRepository() *UsageRepository {
	return &UsageRepository{usages: make(map[models.ProviderID]models.LimitUsage)}
}

func (r *UsageRepository) Get(_ context.Context, id models.ProviderID) (models.LimitUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usages[id], nil
}

func (r *UsageRepository) Update(_ context.Context, id models.ProviderID, fn repositories.UsageMutation) (models.LimitUsage, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.usages[id]
	next, ok := fn(current)
	if !ok {
		return current, false, nil
	}
	r.usages[id] = next
	return next, true, nil
}

func (r *UsageRepository) List(_ context.Context) (map[models.ProviderID]models.LimitUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[models.ProviderID]models.LimitUsage, len(r.usages))
	for id, usage := range r.usages {
		out[id] = usage
	}
	return out, nil
}

// CacheRepository keeps records per cache name
type CacheRepository struct {
	mu      sync.Mutex
	records map[string]map[string]repositories.CacheRecord
}

// NewCacheRepository creates an empty cache repository
func NewCacheRepository() *CacheRepository {
	return &CacheRepository{records: make(map[string]map[string]repositories.CacheRecord)}
}

func (r *CacheRepository) Get(_ context.Context, cache, slot string) (*repositories.CacheRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[cache][slot]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (r *CacheRepository) Put(_ context.Context, record repositories.CacheRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots, ok := r.records[record.Cache]
	if !ok {
		slots = make(map[string]repositories.CacheRecord)
		r.records[record.Cache] = slots
	}
	record.Payload = append([]byte(nil), record.Payload...)
	slots[record.Slot] = record
	return nil
}

func (r *CacheRepository) List(_ context.Context, cache string) ([]repositories.CacheRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]repositories.CacheRecord, 0, len(r.records[cache]))
	for _, record := range r.records[cache] {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoredAt.Before(out[j].StoredAt) })
	return out, nil
}

func (r *CacheRepository) DeleteExpired(_ context.Context, cache string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for slot, record := range r.records[cache] {
		if record.Expired(now) {
			delete(r.records[cache], slot)
			deleted++
		}
	}
	return deleted, nil
}

func (r *CacheRepository) DeleteIfUnchanged(_ context.Context, cache, slot string, storedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[cache][slot]
	if !ok || !record.StoredAt.Equal(storedAt) {
		return false, nil
	}
	delete(r.records[cache], slot)
	return true, nil
}

func (r *CacheRepository) Clear(_ context.Context, cache string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, cache)
	return nil
}

type statKey struct {
	month     string
	provider  models.ProviderID
	operation models.Operation
}

// StatsRepository keeps counters in a map
type StatsRepository struct {
	mu    sync.Mutex
	stats map[statKey]models.ProviderStat
}

// NewStatsRepository creates an empty stats repository
func NewStatsRepository() *StatsRepository {
	return &StatsRepository{stats: make(map[statKey]models.ProviderStat)}
}

func (r *StatsRepository) Increment(_ context.Context, month string, provider models.ProviderID, operation models.Operation, selections, failures int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := statKey{month: month, provider: provider, operation: operation}
	stat, ok := r.stats[k]
	if !ok {
		stat = models.ProviderStat{Month: month, Provider: provider, Operation: operation}
	}
	stat.Selections += selections
	stat.Failures += failures
	r.stats[k] = stat
	return nil
}

func (r *StatsRepository) ListMonth(_ context.Context, month string) ([]models.ProviderStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.ProviderStat
	for k, stat := range r.stats {
		if k.month == month {
			out = append(out, stat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Operation < out[j].Operation
	})
	return out, nil
}
