package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper is a cache whose durable entries can be swept
type Sweeper interface {
	Name() string
	Sweep(ctx context.Context) (int64, error)
}

// SweepAll sweeps every cache once and returns the number of deleted entries
func SweepAll(ctx context.Context, logger *zap.Logger, sweepers ...Sweeper) int64 {
	var total int64
	for _, s := range sweepers {
		deleted, err := s.Sweep(ctx)
		if err != nil {
			logger.Error("failed to sweep cache",
				zap.String("cache", s.Name()),
				zap.Error(err))
			continue
		}
		total += deleted
	}
	return total
}

// StartSweepWorker periodically sweeps the caches until ctx is cancelled
func StartSweepWorker(ctx context.Context, interval time.Duration, logger *zap.Logger, sweepers ...Sweeper) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("cache sweep worker started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("cache sweep worker stopped")
			return
		case <-ticker.C:
			if deleted := SweepAll(ctx, logger, sweepers...); deleted > 0 {
				logger.Info("cache sweep completed", zap.Int64("deleted", deleted))
			}
		}
	}
}
