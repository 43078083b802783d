package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/market-gateway/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Shared quota counter, one row per provider
		CREATE TABLE IF NOT EXISTS provider_usage (
			provider VARCHAR(50) PRIMARY KEY,
			used_count INTEGER NOT NULL DEFAULT 0,
			last_used_at TIMESTAMPTZ
		);

		-- Durable cache tier
		CREATE TABLE IF NOT EXISTS cache_entries (
			cache_name VARCHAR(50) NOT NULL,
			slot VARCHAR(32) NOT NULL,
			payload BYTEA NOT NULL,
			stored_at TIMESTAMPTZ NOT NULL,
			ttl_ms BIGINT NOT NULL,
			PRIMARY KEY (cache_name, slot)
		);

		-- Monthly selection and failure counters
		CREATE TABLE IF NOT EXISTS provider_stats (
			month CHAR(7) NOT NULL,
			provider VARCHAR(50) NOT NULL,
			operation VARCHAR(20) NOT NULL,
			selections BIGINT NOT NULL DEFAULT 0,
			failures BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (month, provider, operation)
		);

		CREATE INDEX IF NOT EXISTS idx_cache_entries_stored_at ON cache_entries(cache_name, stored_at);
		CREATE INDEX IF NOT EXISTS idx_provider_stats_month ON provider_stats(month);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
