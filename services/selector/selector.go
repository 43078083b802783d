// Package selector picks the provider that should serve an operation.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/services/quota"
)

// ErrNoProviderAvailable is returned when every candidate is unconfigured or over quota
var ErrNoProviderAvailable = errors.New("no provider available")

// ConfigSource resolves the configuration of a provider.
// ok is false for providers that are not configured.
type ConfigSource interface {
	Get(id models.ProviderID) (models.ProviderConfig, bool)
}

// QuotaReader reports the live quota state of a provider
type QuotaReader interface {
	Status(ctx context.Context, id models.ProviderID, limits models.LimitConfig) (quota.Status, error)
}

// Candidate is a configured provider with quota left
type Candidate struct {
	Config    models.ProviderConfig
	Rank      int
	Remaining int
}

// Rank orders candidates by rank ascending, then remaining capacity descending.
// The input slice is sorted in place.
func Rank(candidates []Candidate) []Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Rank != candidates[j].Rank {
			return candidates[i].Rank < candidates[j].Rank
		}
		return candidates[i].Remaining > candidates[j].Remaining
	})
	return candidates
}

// Selector chooses among candidate providers
type Selector struct {
	configs ConfigSource
	quotas  QuotaReader
	logger  *zap.Logger
}

// New creates a new Selector
func New(configs ConfigSource, quotas QuotaReader, logger *zap.Logger) *Selector {
	return &Selector{
		configs: configs,
		quotas:  quotas,
		logger:  logger,
	}
}

// Candidates returns the usable candidates in preference order
func (s *Selector) Candidates(ctx context.Context, priorities models.PriorityTable, ids []models.ProviderID) ([]Candidate, error) {
	survivors := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		cfg, ok := s.configs.Get(id)
		if !ok {
			continue
		}

		status, err := s.quotas.Status(ctx, id, cfg.Limits)
		if err != nil {
			return nil, fmt.Errorf("failed to read quota of %s: %w", id, err)
		}
		if !status.CanUse {
			continue
		}

		survivors = append(survivors, Candidate{
			Config:    cfg,
			Rank:      priorities.Rank(id),
			Remaining: status.Remaining,
		})
	}

	return Rank(survivors), nil
}

// Select returns the preferred usable candidate
func (s *Selector) Select(ctx context.Context, priorities models.PriorityTable, ids []models.ProviderID) (Candidate, error) {
	candidates, err := s.Candidates(ctx, priorities, ids)
	if err != nil {
		return Candidate{}, err
	}
	if len(candidates) == 0 {
		s.logger.Debug("no provider available", zap.Int("candidates", len(ids)))
		return Candidate{}, ErrNoProviderAvailable
	}

	chosen := candidates[0]
	s.logger.Debug("provider selected",
		zap.String("provider", string(chosen.Config.ID)),
		zap.Int("rank", chosen.Rank),
		zap.Int("remaining", chosen.Remaining))
	return chosen, nil
}
