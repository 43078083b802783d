package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories"
)

// UsageRepository stores each provider's usage as a JSON document
type UsageRepository struct {
	client *Client
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(client *Client) repositories.UsageRepository {
	return &UsageRepository{client: client}
}

func (r *UsageRepository) usageKey(id models.ProviderID) string {
	return r.client.key("usage", string(id))
}

func (r *UsageRepository) indexKey() string {
	return r.client.key("usage")
}

// Get retrieves the usage of a provider
func (r *UsageRepository) Get(ctx context.Context, id models.ProviderID) (models.LimitUsage, error) {
	return r.read(ctx, r.client.rdb, r.usageKey(id))
}

// Update reads and writes the usage under WATCH so concurrent reservations serialize
func (r *UsageRepository) Update(ctx context.Context, id models.ProviderID, fn repositories.UsageMutation) (models.LimitUsage, bool, error) {
	key := r.usageKey(id)

	var (
		result  models.LimitUsage
		applied bool
	)

	err := r.client.watch(ctx, func(tx *redis.Tx) error {
		current, err := r.read(ctx, tx, key)
		if err != nil {
			return err
		}

		next, ok := fn(current)
		if !ok {
			result, applied = current, false
			return nil
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode usage: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, r.indexKey(), string(id))
			return nil
		})
		if err != nil {
			return err
		}

		result, applied = next, true
		return nil
	}, key)
	if err != nil {
		return models.LimitUsage{}, false, fmt.Errorf("failed to update usage: %w", err)
	}

	r.client.logger.Debug("usage updated",
		zap.String("provider", string(id)),
		zap.Int("used_count", result.UsedCount),
		zap.Bool("applied", applied))
	return result, applied, nil
}

// List returns the usage of every provider recorded in the index set
func (r *UsageRepository) List(ctx context.Context) (map[models.ProviderID]models.LimitUsage, error) {
	ids, err := r.client.rdb.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}

	usages := make(map[models.ProviderID]models.LimitUsage, len(ids))
	for _, id := range ids {
		usage, err := r.read(ctx, r.client.rdb, r.usageKey(models.ProviderID(id)))
		if err != nil {
			return nil, err
		}
		usages[models.ProviderID(id)] = usage
	}
	return usages, nil
}

func (r *UsageRepository) read(ctx context.Context, cmd getter, key string) (models.LimitUsage, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.LimitUsage{}, nil
	}
	if err != nil {
		return models.LimitUsage{}, fmt.Errorf("failed to get usage: %w", err)
	}

	var usage models.LimitUsage
	if err := json.Unmarshal(data, &usage); err != nil {
		return models.LimitUsage{}, fmt.Errorf("failed to decode usage at %s: %w", key, err)
	}
	return usage, nil
}
