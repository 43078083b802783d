package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/market-gateway/config"
	"github.com/upb/market-gateway/models"
	"github.com/upb/market-gateway/repositories"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb, "test:", zap.NewNop()), mr
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "gw"}, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))
	assert.Equal(t, "gw:usage:finnhub", client.key("usage", "finnhub"))

	_, err = New(config.RedisConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestClient_HealthCheckFails(t *testing.T) {
	client, mr := newTestClient(t)
	mr.Close()

	err := client.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
}

func TestUsageRepository(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	repo := NewUsageRepository(client)
	now := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)

	usage, err := repo.Get(ctx, models.ProviderFinnhub)
	require.NoError(t, err)
	assert.Equal(t, models.LimitUsage{}, usage)

	usage, applied, err := repo.Update(ctx, models.ProviderFinnhub, func(current models.LimitUsage) (models.LimitUsage, bool) {
		return models.LimitUsage{LastUsedAt: &now, UsedCount: current.UsedCount + 1}, true
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, usage.UsedCount)

	usage, applied, err = repo.Update(ctx, models.ProviderFinnhub, func(current models.LimitUsage) (models.LimitUsage, bool) {
		return current, false
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1, usage.UsedCount)

	stored, err := repo.Get(ctx, models.ProviderFinnhub)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)
	require.NotNil(t, stored.LastUsedAt)
	assert.True(t, now.Equal(*stored.LastUsedAt))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, models.ProviderFinnhub)
}

func TestUsageRepository_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	repo := NewUsageRepository(client)
	const ceiling = 5

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, applied, err := repo.Update(ctx, models.ProviderPolygon, func(current models.LimitUsage) (models.LimitUsage, bool) {
				if current.UsedCount >= ceiling {
					return current, false
				}
				current.UsedCount++
				return current, true
			})
			if err == nil && applied {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	usage, err := repo.Get(ctx, models.ProviderPolygon)
	require.NoError(t, err)
	assert.LessOrEqual(t, usage.UsedCount, ceiling)
	assert.Equal(t, usage.UsedCount, granted)
}

func TestCacheRepository(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	repo := NewCacheRepository(client)
	stored := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	fresh := repositories.CacheRecord{Cache: "news", Slot: "a", Payload: []byte(`{"v":1}`), StoredAt: stored, TTL: time.Hour}
	stale := repositories.CacheRecord{Cache: "news", Slot: "b", Payload: []byte(`{"v":2}`), StoredAt: stored, TTL: time.Minute}
	require.NoError(t, repo.Put(ctx, fresh))
	require.NoError(t, repo.Put(ctx, stale))

	got, err := repo.Get(ctx, "news", "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fresh.Payload, got.Payload)
	assert.Equal(t, time.Hour, got.TTL)
	assert.True(t, stored.Equal(got.StoredAt))

	missing, err := repo.Get(ctx, "news", "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)

	records, err := repo.List(ctx, "news")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	deleted, err := repo.DeleteExpired(ctx, "news", stored.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	ok, err := repo.DeleteIfUnchanged(ctx, "news", "a", stored.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.DeleteIfUnchanged(ctx, "news", "a", stored)
	require.NoError(t, err)
	assert.True(t, ok)

	records, err = repo.List(ctx, "news")
	require.NoError(t, err)
	assert.Empty(t, records)

	// corrupt documents are skipped by List and removed by DeleteExpired
	require.NoError(t, repo.Put(ctx, fresh))
	require.NoError(t, mr.Set(client.key("cache", "news", "entry", "c"), "not-json"))
	_, err = mr.SAdd(client.key("cache", "news", "slots"), "c")
	require.NoError(t, err)

	records, err = repo.List(ctx, "news")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	deleted, err = repo.DeleteExpired(ctx, "news", stored)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.False(t, mr.Exists(client.key("cache", "news", "entry", "c")))

	require.NoError(t, repo.Clear(ctx, "news"))
	records, err = repo.List(ctx, "news")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStatsRepository(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	repo := NewStatsRepository(client)

	require.NoError(t, repo.Increment(ctx, "2024-01", models.ProviderFinnhub, models.OperationSearch, 1, 0))
	require.NoError(t, repo.Increment(ctx, "2024-01", models.ProviderFinnhub, models.OperationSearch, 1, 1))
	require.NoError(t, repo.Increment(ctx, "2024-01", models.ProviderFMP, models.OperationInfo, 3, 0))
	require.NoError(t, repo.Increment(ctx, "2024-02", models.ProviderFMP, models.OperationInfo, 1, 0))
	require.NoError(t, repo.Increment(ctx, "2024-02", models.ProviderFMP, models.OperationInfo, 0, 0))

	stats, err := repo.ListMonth(ctx, "2024-01")
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, models.ProviderStat{
		Month: "2024-01", Provider: models.ProviderFinnhub, Operation: models.OperationSearch, Selections: 2, Failures: 1,
	}, stats[0])
	assert.Equal(t, models.ProviderFMP, stats[1].Provider)
	assert.Equal(t, int64(3), stats[1].Selections)

	empty, err := repo.ListMonth(ctx, "2023-12")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
