// Package stats records which providers served which operations each month.
package stats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/upb/market-gateway/internal/observability"
	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories"
	"github.com/upb/market-gateway/services"
)

// Service records provider selections and failures
type Service struct {
	repo    repositories.StatsRepository
	metrics observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new stats Service
func NewService(repo repositories.StatsRepository, metrics observability.Metrics, logger *zap.Logger) *Service {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Service{
		repo:    repo,
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

// RecordSelection counts a reserved call. Store errors are logged only.
func (s *Service) RecordSelection(ctx context.Context, operation models.Operation, provider models.ProviderID) {
	s.metrics.RecordSelection(string(operation), string(provider))
	s.record(ctx, operation, provider, 1, 0)
}

// RecordFailure counts a failed call. Store errors are logged only.
func (s *Service) RecordFailure(ctx context.Context, operation models.Operation, provider models.ProviderID) {
	s.metrics.RecordFailure(string(operation), string(provider))
	s.record(ctx, operation, provider, 0, 1)
}

func (s *Service) record(ctx context.Context, operation models.Operation, provider models.ProviderID, selections, failures int64) {
	month := models.MonthOf(s.now())
	if err := s.repo.Increment(ctx, month, provider, operation, selections, failures); err != nil {
		s.logger.Warn("failed to record provider stats",
			zap.String("month", month),
			zap.String("provider", string(provider)),
			zap.String("operation", string(operation)),
			zap.Error(err))
	}
}

// CurrentMonth returns the month key of now
func (s *Service) CurrentMonth() string {
	return models.MonthOf(s.now())
}

// Monthly returns the counters of a yyyy-MM month
func (s *Service) Monthly(ctx context.Context, month string) (models.MonthlyStats, error) {
	if err := models.ValidateMonth(month); err != nil {
		return models.MonthlyStats{}, services.NewDomainError(services.ErrorTypeValidation, err.Error(), err).
			WithDetail("month", month)
	}

	rows, err := s.repo.ListMonth(ctx, month)
	if err != nil {
		return models.MonthlyStats{}, services.WrapInternal("failed to load statistics", err)
	}

	return models.NewMonthlyStats(month, rows), nil
}
