package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upb/market-gateway/config"
	"github.com/upb/market-gateway/repositories"
)

// maxWatchRetries bounds optimistic transaction retries
const maxWatchRetries = 16

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Client wraps a go-redis client with the key prefix of this deployment
type Client struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

// New connects to Redis and verifies the connection
func New(cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis connection established", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return NewWithClient(rdb, cfg.KeyPrefix, logger), nil
}

// NewWithClient wraps an existing go-redis client
func NewWithClient(rdb *redis.Client, prefix string, logger *zap.Logger) *Client {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "market-gateway"
	}
	return &Client{rdb: rdb, prefix: prefix, logger: logger}
}

// HealthCheck pings the server
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (c *Client) Close() error {
	c.logger.Info("closing redis connection")
	return c.rdb.Close()
}

// NewRepositories creates all repository instances on this client
func (c *Client) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Usage:  NewUsageRepository(c),
		Cache:  NewCacheRepository(c),
		Stats:  NewStatsRepository(c),
		Health: c,
	}
}

func (c *Client) key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

// watch runs an optimistic transaction on keys, retrying when another client wins the race
func (c *Client) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := c.rdb.Watch(ctx, fn, keys...)
		if err == redis.TxFailedErr {
			c.logger.Debug("redis transaction retried", zap.Strings("keys", keys), zap.Int("attempt", i+1))
			continue
		}
		return err
	}
	return repositories.ErrConflict
}
