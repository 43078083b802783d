package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories"
	"go.uber.org/zap"
)

// UsageRepository implements the repositories.UsageRepository interface
type UsageRepository struct {
	db     *DB
	tm     repositories.TransactionManager
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB, tm repositories.TransactionManager, logger *zap.Logger) repositories.UsageRepository {
	return &UsageRepository{
		db:     db,
		tm:     tm,
		logger: logger,
	}
}

// Get retrieves the usage of a provider
func (r *UsageRepository) Get(ctx context.Context, id models.ProviderID) (models.LimitUsage, error) {
	query := `
		SELECT used_count, last_used_at
		FROM provider_usage
		WHERE provider = $1
	`

	executor := GetExecutor(ctx, r.db)
	usage, err := scanUsage(executor.QueryRowContext(ctx, query, string(id)))
	if err == sql.ErrNoRows {
		return models.LimitUsage{}, nil
	}
	if err != nil {
		return models.LimitUsage{}, fmt.Errorf("failed to get usage: %w", err)
	}
	return usage, nil
}

// Update locks the provider row for the duration of fn and writes the result
func (r *UsageRepository) Update(ctx context.Context, id models.ProviderID, fn repositories.UsageMutation) (models.LimitUsage, bool, error) {
	var (
		result  models.LimitUsage
		applied bool
	)

	// the FOR UPDATE lock below serializes concurrent reservations of one provider
	err := r.tm.InTransaction(ctx, LockingTxOptions, func(txCtx context.Context) error {
		executor := GetExecutor(txCtx, r.db)

		if _, err := executor.ExecContext(txCtx, `
			INSERT INTO provider_usage (provider, used_count)
			VALUES ($1, 0)
			ON CONFLICT (provider) DO NOTHING
		`, string(id)); err != nil {
			return fmt.Errorf("failed to seed usage: %w", err)
		}

		current, err := scanUsage(executor.QueryRowContext(txCtx, `
			SELECT used_count, last_used_at
			FROM provider_usage
			WHERE provider = $1
			FOR UPDATE
		`, string(id)))
		if err != nil {
			return fmt.Errorf("failed to lock usage: %w", err)
		}

		next, ok := fn(current)
		if !ok {
			result = current
			return nil
		}

		if _, err := executor.ExecContext(txCtx, `
			UPDATE provider_usage
			SET used_count = $2, last_used_at = $3
			WHERE provider = $1
		`, string(id), next.UsedCount, next.LastUsedAt); err != nil {
			return fmt.Errorf("failed to update usage: %w", err)
		}

		result, applied = next, true
		return nil
	})
	if err != nil {
		return models.LimitUsage{}, false, err
	}

	r.logger.Debug("usage updated",
		zap.String("provider", string(id)),
		zap.Int("used_count", result.UsedCount),
		zap.Bool("applied", applied))
	return result, applied, nil
}

// List returns the usage of every provider
func (r *UsageRepository) List(ctx context.Context) (map[models.ProviderID]models.LimitUsage, error) {
	query := `
		SELECT provider, used_count, last_used_at
		FROM provider_usage
		ORDER BY provider
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	usages := make(map[models.ProviderID]models.LimitUsage)
	for rows.Next() {
		var (
			provider string
			usage    models.LimitUsage
			lastUsed sql.NullTime
		)
		if err := rows.Scan(&provider, &usage.UsedCount, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		usage.LastUsedAt = nullTimePtr(lastUsed)
		usages[models.ProviderID(provider)] = usage
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage: %w", err)
	}

	return usages, nil
}

func scanUsage(row *sql.Row) (models.LimitUsage, error) {
	var (
		usage    models.LimitUsage
		lastUsed sql.NullTime
	)
	if err := row.Scan(&usage.UsedCount, &lastUsed); err != nil {
		return models.LimitUsage{}, err
	}
	usage.LastUsedAt = nullTimePtr(lastUsed)
	return usage, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
