package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories"
)

const (
	fieldSelections = "selections"
	fieldFailures   = "failures"
)

// StatsRepository keeps one hash per month with provider|operation|counter fields
type StatsRepository struct {
	client *Client
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(client *Client) repositories.StatsRepository {
	return &StatsRepository{client: client}
}

func (r *StatsRepository) monthKey(month string) string {
	return r.client.key("stats", month)
}

func statField(provider models.ProviderID, operation models.Operation, counter string) string {
	return string(provider) + "|" + string(operation) + "|" + counter
}

// Increment adds to the counters with HINCRBY
func (r *StatsRepository) Increment(ctx context.Context, month string, provider models.ProviderID, operation models.Operation, selections, failures int64) error {
	if selections == 0 && failures == 0 {
		return nil
	}
	key := r.monthKey(month)

	pipe := r.client.rdb.TxPipeline()
	if selections != 0 {
		pipe.HIncrBy(ctx, key, statField(provider, operation, fieldSelections), selections)
	}
	if failures != 0 {
		pipe.HIncrBy(ctx, key, statField(provider, operation, fieldFailures), failures)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment stats: %w", err)
	}
	return nil
}

// ListMonth folds the month hash back into counter rows
func (r *StatsRepository) ListMonth(ctx context.Context, month string) ([]models.ProviderStat, error) {
	fields, err := r.client.rdb.HGetAll(ctx, r.monthKey(month)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list stats: %w", err)
	}

	type rowKey struct {
		provider  models.ProviderID
		operation models.Operation
	}
	rows := make(map[rowKey]*models.ProviderStat)

	for field, raw := range fields {
		parts := strings.Split(field, "|")
		if len(parts) != 3 {
			continue
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stats counter %s: %w", field, err)
		}

		k := rowKey{provider: models.ProviderID(parts[0]), operation: models.Operation(parts[1])}
		row, ok := rows[k]
		if !ok {
			row = &models.ProviderStat{Month: month, Provider: k.provider, Operation: k.operation}
			rows[k] = row
		}
		switch parts[2] {
		case fieldSelections:
			row.Selections += value
		case fieldFailures:
			row.Failures += value
		}
	}

	stats := make([]models.ProviderStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, *row)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Provider != stats[j].Provider {
			return stats[i].Provider < stats[j].Provider
		}
		return stats[i].Operation < stats[j].Operation
	})
	return stats, nil
}
