package postgres

import (
	"context"
	"fmt"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories"
	"go.uber.org/zap"
)

// StatsRepository implements the repositories.StatsRepository interface
type StatsRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *DB, logger *zap.Logger) repositories.StatsRepository {
	return &StatsRepository{
		db:     db,
		logger: logger,
	}
}

// Increment upserts one counter row
func (r *StatsRepository) Increment(ctx context.Context, month string, provider models.ProviderID, operation models.Operation, selections, failures int64) error {
	query := `
		INSERT INTO provider_stats (month, provider, operation, selections, failures)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (month, provider, operation) DO UPDATE
		SET selections = provider_stats.selections + EXCLUDED.selections,
			failures = provider_stats.failures + EXCLUDED.failures
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query, month, string(provider), string(operation), selections, failures)
	if err != nil {
		return fmt.Errorf("failed to increment stats: %w", err)
	}

	return nil
}

// ListMonth retrieves every counter row of a month
func (r *StatsRepository) ListMonth(ctx context.Context, month string) ([]models.ProviderStat, error) {
	query := `
		SELECT month, provider, operation, selections, failures
		FROM provider_stats
		WHERE month = $1
		ORDER BY provider, operation
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list stats: %w", err)
	}
	defer rows.Close()

	var stats []models.ProviderStat
	for rows.Next() {
		var stat models.ProviderStat
		if err := rows.Scan(&stat.Month, &stat.Provider, &stat.Operation, &stat.Selections, &stat.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}

	return stats, nil
}
