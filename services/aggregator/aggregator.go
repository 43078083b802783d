// Package aggregator serves search, news and info requests across vendors,
// spending quota before each call and failing over between providers.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services"
	"github.com/upb/market-gateway/services/cache"
	"github.com/upb/market-gateway/services/providers"
	"github.com/upb/market-gateway/services/selector"
)

// Selector picks the preferred usable provider
type Selector interface {
	Select(ctx context.Context, priorities models.PriorityTable, ids []models.ProviderID) (selector.Candidate, error)
}

// Reserver spends quota atomically
type Reserver interface {
	TryReserve(ctx context.Context, id models.ProviderID, limits models.LimitConfig) (models.LimitUsage, bool, error)
}

// Recorder counts call outcomes
type Recorder interface {
	RecordSelection(ctx context.Context, operation models.Operation, provider models.ProviderID)
	RecordFailure(ctx context.Context, operation models.Operation, provider models.ProviderID)
}

// Service is the aggregation core
type Service struct {
	registry *providers.Registry
	selector Selector
	quotas   Reserver
	stats    Recorder
	caches   Caches
	logger   *zap.Logger
}

// New creates a new aggregator Service
func New(registry *providers.Registry, sel Selector, quotas Reserver, stats Recorder, caches Caches, logger *zap.Logger) *Service {
	return &Service{
		registry: registry,
		selector: sel,
		quotas:   quotas,
		stats:    stats,
		caches:   caches,
		logger:   logger,
	}
}

// Search looks tickers up by free text. Results are cached per normalized
// query; empty results are returned but not cached.
func (s *Service) Search(ctx context.Context, query string) ([]models.Ticker, error) {
	query = strings.TrimSpace(query)
	key := strings.ToLower(query)

	return s.caches.Search.GetOrFetch(ctx, key, func(ctx context.Context) ([]models.Ticker, error) {
		tickers, _, err := makeCall(ctx, s, models.OperationSearch, s.registry.Capable(models.OperationSearch),
			func(ctx context.Context, id models.ProviderID) ([]models.Ticker, error) {
				p, err := s.registry.Search(id)
				if err != nil {
					return nil, err
				}
				return p.Search(ctx, query)
			})
		return tickers, err
	})
}

// News returns recent news per ticker. Tickers no provider could serve are
// absent from the result.
func (s *Service) News(ctx context.Context, tickers []string) (map[string][]models.NewsItem, error) {
	return batch(ctx, s, models.OperationNews, tickers, s.caches.News,
		func(ctx context.Context, id models.ProviderID, pending []string) (map[string][]models.NewsItem, error) {
			p, err := s.registry.News(id)
			if err != nil {
				return nil, err
			}
			return p.News(ctx, pending)
		})
}

// Info returns the latest quote per ticker. Tickers no provider could serve
// are absent from the result.
func (s *Service) Info(ctx context.Context, tickers []string) (map[string]models.Info, error) {
	return batch(ctx, s, models.OperationInfo, tickers, s.caches.Info,
		func(ctx context.Context, id models.ProviderID, pending []string) (map[string]models.Info, error) {
			p, err := s.registry.Info(id)
			if err != nil {
				return nil, err
			}
			return p.Info(ctx, pending)
		})
}

// makeCall selects a provider, reserves one call of its quota, records the
// selection and invokes it. The returned id is empty when no provider was
// invoked. A reservation lost to a concurrent caller excludes that provider
// and selects again.
func makeCall[R any](ctx context.Context, s *Service, operation models.Operation, candidates []models.ProviderID, invoke func(ctx context.Context, id models.ProviderID) (R, error)) (R, models.ProviderID, error) {
	var zero R
	priorities := providers.Priorities(operation)

	for {
		chosen, err := s.selector.Select(ctx, priorities, candidates)
		if errors.Is(err, selector.ErrNoProviderAvailable) {
			return zero, "", services.NewDomainError(services.ErrorTypeNoProvider,
				fmt.Sprintf("no provider available for %s", operation), err).
				WithDetail("operation", string(operation))
		}
		if err != nil {
			return zero, "", services.WrapInternal("failed to select provider", err)
		}

		id := chosen.Config.ID
		_, granted, err := s.quotas.TryReserve(ctx, id, chosen.Config.Limits)
		if err != nil {
			return zero, "", services.WrapInternal("failed to reserve quota", err)
		}
		if !granted {
			candidates = without(candidates, id)
			continue
		}
		s.stats.RecordSelection(ctx, operation, id)

		timeout := chosen.Config.Timeout
		if timeout <= 0 {
			timeout = providers.DefaultTimeout
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := invoke(callCtx, id)
		cancel()

		if err != nil {
			s.stats.RecordFailure(ctx, operation, id)
			s.logger.Warn("provider call failed",
				zap.String("operation", string(operation)),
				zap.String("provider", string(id)),
				zap.Error(err))
			return zero, id, services.NewDomainError(services.ErrorTypeExternal,
				fmt.Sprintf("%s %s failed", id, operation), err).
				WithDetail("provider", string(id))
		}
		return result, id, nil
	}
}

// batch serves cached tickers directly and asks providers in preference
// order for the rest. Every provider is asked at most once per batch.
func batch[V any](ctx context.Context, s *Service, operation models.Operation, tickers []string, c *cache.Layered[V], fetch func(ctx context.Context, id models.ProviderID, pending []string) (map[string]V, error)) (map[string]V, error) {
	result := make(map[string]V, len(tickers))
	pending := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if v, ok := c.Get(ctx, t); ok {
			result[t] = v
			continue
		}
		pending = append(pending, t)
	}

	// collected turns true once the cache or any provider call contributed
	collected := len(result) > 0
	candidates := s.registry.Capable(operation)
	var lastErr error

	for len(pending) > 0 && len(candidates) > 0 {
		if err := ctx.Err(); err != nil {
			if !collected {
				return nil, err
			}
			s.logger.Info("batch cancelled",
				zap.String("operation", string(operation)),
				zap.Int("pending", len(pending)))
			break
		}

		asked := pending
		found, id, err := makeCall(ctx, s, operation, candidates,
			func(ctx context.Context, id models.ProviderID) (map[string]V, error) {
				return fetch(ctx, id, asked)
			})
		if err != nil {
			if id == "" {
				if !collected {
					return nil, err
				}
				s.logger.Info("batch stopped early",
					zap.String("operation", string(operation)),
					zap.Int("pending", len(pending)),
					zap.Error(err))
				break
			}
			lastErr = err
			candidates = without(candidates, id)
			continue
		}

		collected = true
		// a provider that served only part of the batch is not asked again;
		// the tickers it left out go to the next provider in preference order
		candidates = without(candidates, id)

		next := make([]string, 0, len(pending))
		for _, t := range pending {
			v, ok := found[t]
			if !ok {
				next = append(next, t)
				continue
			}
			c.Put(ctx, t, v)
			result[t] = v
		}
		s.logger.Debug("batch step",
			zap.String("operation", string(operation)),
			zap.String("provider", string(id)),
			zap.Int("served", len(pending)-len(next)),
			zap.Int("pending", len(next)))
		pending = next
	}

	if !collected && lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}

func without(ids []models.ProviderID, id models.ProviderID) []models.ProviderID {
	out := make([]models.ProviderID, 0, len(ids))
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
