package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/upb/market-gateway/config"
	"github.com/upb/market-gateway/internal/observability"
	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories"
	"github.com/upb/market-gateway/repositories/memory"
	"github.com/upb/market-gateway/repositories/postgres"
	redisrepo "github.com/upb/market-gateway/repositories/redis"
	"github.com/upb/market-gateway/services/aggregator"
	"github.com/upb/market-gateway/services/cache"
	"github.com/upb/market-gateway/services/providers"
	"github.com/upb/market-gateway/services/providers/alphavantage"
	"github.com/upb/market-gateway/services/providers/finnhub"
	"github.com/upb/market-gateway/services/providers/fmp"
	"github.com/upb/market-gateway/services/providers/marketaux"
	"github.com/upb/market-gateway/services/providers/polygon"
	"github.com/upb/market-gateway/services/providers/tiingo"
	"github.com/upb/market-gateway/services/providers/twelvedata"
	"github.com/upb/market-gateway/services/quota"
	"github.com/upb/market-gateway/services/selector"
	"github.com/upb/market-gateway/services/stats"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Store backends, at most one of them is set
	RepoFactory *postgres.RepositoryFactory
	Redis       *redisrepo.Client

	// Repositories
	Repos *repositories.Repositories

	// Metrics
	MetricsRegistry *prometheus.Registry
	Metrics         observability.Metrics

	// Services
	Providers  *providers.Registry
	Quotas     *quota.Service
	Selector   *selector.Selector
	Stats      *stats.Service
	Caches     aggregator.Caches
	Aggregator *aggregator.Service

	stopWorkers context.CancelFunc
	workers     sync.WaitGroup
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize the durable store
	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	deps.initMetrics(cfg)

	// Initialize provider registry
	if err := deps.initProviders(cfg); err != nil {
		_ = deps.closeStore()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initServices(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("store", cfg.Store.Backend),
		zap.Int("providers_configured", len(cfg.Providers.Configured())))
	return deps, nil
}

// initStore opens the configured backend and creates its repositories
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		if err := factory.GetDB().PingContext(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("database ping failed: %w", err)
		}
		d.RepoFactory = factory
		d.Repos = factory.NewRepositories()
		d.Logger.Info("database connection established",
			zap.String("connection", cfg.Database.LogString()))

	case config.StoreBackendRedis:
		client, err := redisrepo.New(cfg.Redis, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.Redis = client
		d.Repos = client.NewRepositories()

	case config.StoreBackendMemory:
		d.Logger.Warn("using in-memory store, quotas and caches are lost on restart")
		d.Repos = memory.NewRepositories()

	default:
		return fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}

	d.Logger.Info("repositories initialized", zap.String("backend", cfg.Store.Backend))
	return nil
}

// initMetrics builds a private prometheus registry when metrics are enabled
func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NopMetrics{}
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.MetricsRegistry = reg
	d.Metrics = observability.NewPrometheusMetrics(reg)
}

// initProviders builds one adapter per vendor entry
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry, err := providers.NewRegistryBuilder().
		WithProviderBuilder(models.ProviderFinnhub, finnhub.Build).
		WithProviderBuilder(models.ProviderAlphaVantage, alphavantage.Build).
		WithProviderBuilder(models.ProviderPolygon, polygon.Build).
		WithProviderBuilder(models.ProviderTwelveData, twelvedata.Build).
		WithProviderBuilder(models.ProviderFMP, fmp.Build).
		WithProviderBuilder(models.ProviderMarketaux, marketaux.Build).
		WithProviderBuilder(models.ProviderTiingo, tiingo.Build).
		Build(cfg.Providers.Entries)
	if err != nil {
		return err
	}

	configured := cfg.Providers.Configured()
	if len(configured) == 0 {
		d.Logger.Warn("no market data providers configured, every request will fail over to 503")
	}
	for _, id := range configured {
		d.Logger.Info("provider configured", zap.String("provider", string(id)))
	}

	d.Providers = registry
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.Quotas = quota.NewService(d.Repos.Usage, d.Metrics, d.Logger)
	d.Selector = selector.New(cfg.Providers, d.Quotas, d.Logger)
	d.Stats = stats.NewService(d.Repos.Stats, d.Metrics, d.Logger)
	d.Caches = aggregator.NewCaches(cfg.Cache, d.Repos.Cache, d.Metrics, d.Logger)
	d.Aggregator = aggregator.New(d.Providers, d.Selector, d.Quotas, d.Stats, d.Caches, d.Logger)
}

// HealthChecks lists the dependencies probed by the readiness endpoint
func (d *Dependencies) HealthChecks() map[string]repositories.HealthChecker {
	return map[string]repositories.HealthChecker{
		d.Config.Store.Backend: d.Repos.Health,
	}
}

// InitSchema bootstraps the durable schema. Only Postgres needs one.
func (d *Dependencies) InitSchema(ctx context.Context) error {
	if d.RepoFactory == nil {
		d.Logger.Info("store backend has no schema to initialize", zap.String("backend", d.Config.Store.Backend))
		return nil
	}
	if err := d.RepoFactory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	d.Logger.Info("database schema initialized")
	return nil
}

// Sweep removes expired durable cache entries once
func (d *Dependencies) Sweep(ctx context.Context) int64 {
	return cache.SweepAll(ctx, d.Logger, d.Caches.Sweepers()...)
}

// StartWorkers launches background workers. They stop on Close or when ctx ends.
func (d *Dependencies) StartWorkers(ctx context.Context) {
	if d.stopWorkers != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	d.stopWorkers = cancel

	interval := d.Config.Cache.SweepInterval
	if interval <= 0 {
		d.Logger.Info("cache sweep worker disabled")
		return
	}

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		cache.StartSweepWorker(ctx, interval, d.Logger, d.Caches.Sweepers()...)
	}()
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.stopWorkers != nil {
		d.stopWorkers()
		d.workers.Wait()
	}

	err := d.closeStore()

	// Sync logger
	_ = d.Logger.Sync()

	if err != nil {
		return fmt.Errorf("errors during shutdown: %w", err)
	}
	return nil
}

func (d *Dependencies) closeStore() error {
	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		} else {
			d.Logger.Info("redis connection closed")
		}
	}

	return errors.Join(errs...)
}
