package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &DB{DB: sqlDB, logger: zap.NewNop()}, mock
}

func TestDB_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		require.NoError(t, db.HealthCheck(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping fails", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		err := db.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database health check failed")
	})
}

func TestDB_InitSchema(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS provider_usage")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_InTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits and logs isolation", func(t *testing.T) {
		db, mock := newMockDB(t)
		core, logs := observer.New(zapcore.DebugLevel)
		tm := NewTransactionManager(db, zap.New(core))

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cache_entries")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := tm.InTransaction(ctx, LockingTxOptions, func(txCtx context.Context) error {
			_, err := GetExecutor(txCtx, db).ExecContext(txCtx, "DELETE FROM cache_entries")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())

		entries := logs.FilterMessage("transaction committed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "Read Committed", entries[0].ContextMap()["isolation"])
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := tm.InTransaction(ctx, nil, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested call joins the outer transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectCommit()

		err := tm.InTransaction(ctx, nil, func(outer context.Context) error {
			return tm.InTransaction(outer, LockingTxOptions, func(inner context.Context) error {
				outerTx, _ := txFromContext(outer)
				innerTx, ok := txFromContext(inner)
				require.True(t, ok)
				assert.Same(t, outerTx, innerTx)
				return nil
			})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("executor falls back to the pool", func(t *testing.T) {
		db, _ := newMockDB(t)
		assert.Equal(t, Executor(db.DB), GetExecutor(ctx, db))
	})
}

func TestUsageRepository_Get(t *testing.T) {
	ctx := context.Background()
	last := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)

	t.Run("existing row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageRepository(db, NewTransactionManager(db, zap.NewNop()), zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("SELECT used_count, last_used_at FROM provider_usage")).
			WithArgs("finnhub").
			WillReturnRows(sqlmock.NewRows([]string{"used_count", "last_used_at"}).AddRow(3, last))

		usage, err := repo.Get(ctx, models.ProviderFinnhub)
		require.NoError(t, err)
		assert.Equal(t, 3, usage.UsedCount)
		require.NotNil(t, usage.LastUsedAt)
		assert.True(t, last.Equal(*usage.LastUsedAt))
	})

	t.Run("missing row is zero usage", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageRepository(db, NewTransactionManager(db, zap.NewNop()), zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM provider_usage")).
			WithArgs("polygon").
			WillReturnRows(sqlmock.NewRows([]string{"used_count", "last_used_at"}))

		usage, err := repo.Get(ctx, models.ProviderPolygon)
		require.NoError(t, err)
		assert.Equal(t, models.LimitUsage{}, usage)
	})
}

func TestUsageRepository_Update(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)

	increment := func(current models.LimitUsage) (models.LimitUsage, bool) {
		return models.LimitUsage{LastUsedAt: &now, UsedCount: current.UsedCount + 1}, true
	}

	t.Run("applies mutation under row lock", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageRepository(db, NewTransactionManager(db, zap.NewNop()), zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO provider_usage")).
			WithArgs("fmp").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs("fmp").
			WillReturnRows(sqlmock.NewRows([]string{"used_count", "last_used_at"}).AddRow(4, nil))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE provider_usage")).
			WithArgs("fmp", 5, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		usage, applied, err := repo.Update(ctx, models.ProviderFMP, increment)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, 5, usage.UsedCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("declined mutation writes nothing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageRepository(db, NewTransactionManager(db, zap.NewNop()), zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO provider_usage")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WillReturnRows(sqlmock.NewRows([]string{"used_count", "last_used_at"}).AddRow(5, now))
		mock.ExpectCommit()

		usage, applied, err := repo.Update(ctx, models.ProviderFMP, func(current models.LimitUsage) (models.LimitUsage, bool) {
			return current, false
		})
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, 5, usage.UsedCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageRepository(db, NewTransactionManager(db, zap.NewNop()), zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO provider_usage")).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		_, applied, err := repo.Update(ctx, models.ProviderFMP, increment)
		require.Error(t, err)
		assert.False(t, applied)
		assert.Contains(t, err.Error(), "failed to seed usage")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUsageRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsageRepository(db, NewTransactionManager(db, zap.NewNop()), zap.NewNop())
	last := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT provider, used_count, last_used_at")).
		WillReturnRows(sqlmock.NewRows([]string{"provider", "used_count", "last_used_at"}).
			AddRow("finnhub", 2, last).
			AddRow("tiingo", 0, nil))

	usages, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, usages, 2)
	assert.Equal(t, 2, usages[models.ProviderFinnhub].UsedCount)
	assert.Nil(t, usages[models.ProviderTiingo].LastUsedAt)
}

func TestCacheRepository(t *testing.T) {
	ctx := context.Background()
	stored := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("get hit", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCacheRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("SELECT payload, stored_at, ttl_ms FROM cache_entries")).
			WithArgs("search", "00ff").
			WillReturnRows(sqlmock.NewRows([]string{"payload", "stored_at", "ttl_ms"}).
				AddRow([]byte(`{"value":[]}`), stored, int64(60000)))

		record, err := repo.Get(ctx, "search", "00ff")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, time.Minute, record.TTL)
		assert.Equal(t, "search", record.Cache)
		assert.JSONEq(t, `{"value":[]}`, string(record.Payload))
	})

	t.Run("get miss", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCacheRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM cache_entries")).
			WillReturnRows(sqlmock.NewRows([]string{"payload", "stored_at", "ttl_ms"}))

		record, err := repo.Get(ctx, "search", "00ff")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("put upserts", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCacheRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (cache_name, slot) DO UPDATE")).
			WithArgs("news", "abcd", []byte("{}"), stored, int64(1800000)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Put(ctx, repositories.CacheRecord{
			Cache: "news", Slot: "abcd", Payload: []byte("{}"), StoredAt: stored, TTL: 30 * time.Minute,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCacheRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("SELECT slot, payload, stored_at, ttl_ms")).
			WithArgs("info").
			WillReturnRows(sqlmock.NewRows([]string{"slot", "payload", "stored_at", "ttl_ms"}).
				AddRow("a", []byte("1"), stored, int64(1000)).
				AddRow("b", []byte("2"), stored, int64(2000)))

		records, err := repo.List(ctx, "info")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, 2*time.Second, records[1].TTL)
	})

	t.Run("delete expired checks at delete time", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCacheRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("stored_at + ttl_ms * INTERVAL '1 millisecond' <= $2")).
			WithArgs("info", stored).
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := repo.DeleteExpired(ctx, "info", stored)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("delete if unchanged", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCacheRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("AND stored_at = $3")).
			WithArgs("info", "a", stored).
			WillReturnResult(sqlmock.NewResult(0, 0))

		deleted, err := repo.DeleteIfUnchanged(ctx, "info", "a", stored)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("clear", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCacheRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cache_entries WHERE cache_name = $1")).
			WithArgs("news").
			WillReturnResult(sqlmock.NewResult(0, 10))

		require.NoError(t, repo.Clear(ctx, "news"))
	})
}

func TestStatsRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("increment upserts", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewStatsRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (month, provider, operation) DO UPDATE")).
			WithArgs("2024-01", "finnhub", "search", int64(1), int64(0)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Increment(ctx, "2024-01", models.ProviderFinnhub, models.OperationSearch, 1, 0))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("increment error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewStatsRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO provider_stats")).
			WillReturnError(errors.New("boom"))

		err := repo.Increment(ctx, "2024-01", models.ProviderFinnhub, models.OperationSearch, 0, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to increment stats")
	})

	t.Run("list month", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewStatsRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM provider_stats")).
			WithArgs("2024-01").
			WillReturnRows(sqlmock.NewRows([]string{"month", "provider", "operation", "selections", "failures"}).
				AddRow("2024-01", "finnhub", "news", int64(4), int64(1)).
				AddRow("2024-01", "fmp", "info", int64(2), int64(0)))

		stats, err := repo.ListMonth(ctx, "2024-01")
		require.NoError(t, err)
		require.Len(t, stats, 2)
		assert.Equal(t, models.ProviderFinnhub, stats[0].Provider)
		assert.Equal(t, models.OperationNews, stats[0].Operation)
		assert.Equal(t, int64(4), stats[0].Selections)
	})
}
