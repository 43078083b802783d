package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/market-gateway/repositories"
	"go.uber.org/zap"
)

type txKey struct{}

// LockingTxOptions is used by read-modify-write sequences that take
// row locks with SELECT ... FOR UPDATE. Read committed is enough because
// the lock, not the snapshot, serializes writers of the same row.
var LockingTxOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// TransactionManager runs work inside a Postgres transaction
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{
		db:     db,
		logger: logger,
	}
}

// InTransaction runs fn with a context bound to a new transaction. It
// commits when fn succeeds and rolls back otherwise. A context that already
// carries a transaction joins it, and opts are ignored.
func (tm *TransactionManager) InTransaction(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := tm.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	start := time.Now()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			tm.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err),
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	tm.logger.Debug("transaction committed",
		zap.String("isolation", isolationName(opts)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func isolationName(opts *sql.TxOptions) string {
	if opts == nil {
		return sql.LevelDefault.String()
	}
	return opts.Isolation.String()
}

func txFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// Executor is an interface that can execute queries (both *sql.DB and *sql.Tx)
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction bound to ctx, or the pool
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return db.DB
}
