package aggregator

import (
	"go.uber.org/zap"

	"github.com/upb/market-gateway/config"
	"github.com/upb/market-gateway/internal/observability"
	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories"
	"github.com/upb/market-gateway/services/cache"
)

// Cache names, also used as durable cache partitions
const (
	CacheSearch = "search"
	CacheNews   = "news"
	CacheInfo   = "info"
)

// Caches groups the per-operation layered caches
type Caches struct {
	Search *cache.Layered[[]models.Ticker]
	News   *cache.Layered[[]models.NewsItem]
	Info   *cache.Layered[models.Info]
}

// NewCaches builds the three caches. A nil repo keeps them in process only.
func NewCaches(cfg config.CacheConfig, repo repositories.CacheRepository, metrics observability.Metrics, logger *zap.Logger) Caches {
	return Caches{
		Search: cache.NewLayered(CacheSearch, cache.Options[[]models.Ticker]{
			Size:          cfg.Search.Size,
			TTL:           cfg.Search.TTL,
			SweepInterval: cfg.SweepInterval,
			Cacheable:     func(t []models.Ticker) bool { return len(t) > 0 },
		}, repo, metrics, logger),
		News: cache.NewLayered(CacheNews, cache.Options[[]models.NewsItem]{
			Size:          cfg.News.Size,
			TTL:           cfg.News.TTL,
			SweepInterval: cfg.SweepInterval,
			Cacheable:     func(n []models.NewsItem) bool { return len(n) > 0 },
		}, repo, metrics, logger),
		Info: cache.NewLayered(CacheInfo, cache.Options[models.Info]{
			Size:          cfg.Info.Size,
			TTL:           cfg.Info.TTL,
			SweepInterval: cfg.SweepInterval,
		}, repo, metrics, logger),
	}
}

// Sweepers lists the caches for the background sweep worker
func (c Caches) Sweepers() []cache.Sweeper {
	return []cache.Sweeper{c.Search, c.News, c.Info}
}
