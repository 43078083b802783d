package quota

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/upb/market-gateway/internal/observability"
	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories"
)

// Status is the quota view of one provider at a point in time
type Status struct {
	Usage     models.LimitUsage
	CanUse    bool
	Remaining int
}

// Entry is the quota status of one provider
type Entry struct {
	Provider models.ProviderID
	Status
}

// Service applies the tracker rules against the durable usage store
type Service struct {
	usage   repositories.UsageRepository
	metrics observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new quota Service
func NewService(usage repositories.UsageRepository, metrics observability.Metrics, logger *zap.Logger) *Service {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Service{
		usage:   usage,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Snapshot returns the stored usage of a provider as is
func (s *Service) Snapshot(ctx context.Context, id models.ProviderID) (models.LimitUsage, error) {
	usage, err := s.usage.Get(ctx, id)
	if err != nil {
		return models.LimitUsage{}, fmt.Errorf("failed to read usage of %s: %w", id, err)
	}
	return usage, nil
}

// Status evaluates a provider against its limits at the current time
func (s *Service) Status(ctx context.Context, id models.ProviderID, limits models.LimitConfig) (Status, error) {
	usage, err := s.Snapshot(ctx, id)
	if err != nil {
		return Status{}, err
	}

	now := s.now()
	return Status{
		Usage:     ResetIfNeeded(usage, limits, now),
		CanUse:    CanUse(usage, limits, now),
		Remaining: RemainingCapacity(usage, limits, now),
	}, nil
}

// TryReserve spends one call of quota if any is left. The check and the
// increment happen in one atomic update of the store, so concurrent callers
// cannot exceed a ceiling. A granted reservation is never refunded.
func (s *Service) TryReserve(ctx context.Context, id models.ProviderID, limits models.LimitConfig) (models.LimitUsage, bool, error) {
	now := s.now()

	usage, granted, err := s.usage.Update(ctx, id, func(current models.LimitUsage) (models.LimitUsage, bool) {
		if !CanUse(current, limits, now) {
			return current, false
		}
		return Increment(current, limits, now), true
	})
	if err != nil {
		return models.LimitUsage{}, false, fmt.Errorf("failed to reserve quota of %s: %w", id, err)
	}

	remaining := RemainingCapacity(usage, limits, now)
	s.metrics.SetQuotaRemaining(string(id), remaining)

	if granted {
		s.logger.Debug("quota reserved",
			zap.String("provider", string(id)),
			zap.Int("used_count", usage.UsedCount),
			zap.Int("remaining", remaining))
	} else {
		s.logger.Info("quota exhausted",
			zap.String("provider", string(id)),
			zap.Int("used_count", usage.UsedCount))
	}

	return usage, granted, nil
}

// Overview evaluates the given providers with a single read of the usage
// store. Providers never used report zero usage. Entries are sorted by id.
func (s *Service) Overview(ctx context.Context, configs []models.ProviderConfig) ([]Entry, error) {
	usages, err := s.usage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}

	now := s.now()
	entries := make([]Entry, 0, len(configs))
	for _, cfg := range configs {
		usage := usages[cfg.ID]
		entries = append(entries, Entry{
			Provider: cfg.ID,
			Status: Status{
				Usage:     ResetIfNeeded(usage, cfg.Limits, now),
				CanUse:    CanUse(usage, cfg.Limits, now),
				Remaining: RemainingCapacity(usage, cfg.Limits, now),
			},
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Provider < entries[j].Provider })
	return entries, nil
}
