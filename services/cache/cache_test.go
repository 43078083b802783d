package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/market-gateway/repositories"
	"github.com/upb/market-gateway/repositories/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingCacheRepository struct {
	repositories.CacheRepository
}

func (failingCacheRepository) Get(context.Context, string, string) (*repositories.CacheRecord, error) {
	return nil, errors.New("store down")
}

func (failingCacheRepository) Put(context.Context, repositories.CacheRecord) error {
	return errors.New("store down")
}

func (failingCacheRepository) DeleteExpired(context.Context, string, time.Time) (int64, error) {
	return 0, errors.New("store down")
}

func TestSlot(t *testing.T) {
	assert.Equal(t, Slot("aapl"), Slot("aapl"))
	assert.NotEqual(t, Slot("aapl"), Slot("msft"))
	assert.NotContains(t, Slot("aapl"), "aapl")
}

func TestMemoryTier_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	tier := NewMemoryTier[string](10, time.Minute, clock.Now)

	require.NoError(t, tier.Put(ctx, "k", "v", false))

	got, ok, err := tier.Get(ctx, "k", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	clock.Advance(time.Minute)

	got, ok, _ = tier.Get(ctx, "k", true)
	assert.True(t, ok, "skipTTL returns expired entries")
	assert.Equal(t, "v", got)

	_, ok, _ = tier.Get(ctx, "k", false)
	assert.False(t, ok)
	assert.Equal(t, 0, tier.Len(), "expired entry removed on read")
}

func TestMemoryTier_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	tier := NewMemoryTier[int](3, time.Hour, newClock().Now)

	for i := 0; i < 3; i++ {
		require.NoError(t, tier.Put(ctx, fmt.Sprintf("k%d", i), i, false))
	}

	// touch k0 so k1 becomes the least recently used
	_, ok, _ := tier.Get(ctx, "k0", false)
	require.True(t, ok)

	require.NoError(t, tier.Put(ctx, "k3", 3, false))

	assert.Equal(t, 3, tier.Len())
	_, ok, _ = tier.Get(ctx, "k1", false)
	assert.False(t, ok)
	for _, key := range []string{"k0", "k2", "k3"} {
		_, ok, _ = tier.Get(ctx, key, false)
		assert.True(t, ok, key)
	}
}

func TestMemoryTier_OverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	tier := NewMemoryTier[int](2, time.Hour, newClock().Now)

	require.NoError(t, tier.Put(ctx, "a", 1, false))
	require.NoError(t, tier.Put(ctx, "b", 2, false))
	require.NoError(t, tier.Put(ctx, "a", 10, false))

	assert.Equal(t, 2, tier.Len())
	got, ok, _ := tier.Get(ctx, "a", false)
	assert.True(t, ok)
	assert.Equal(t, 10, got)
}

func TestMemoryTier_PutPurgesExpired(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	tier := NewMemoryTier[int](2, time.Minute, clock.Now)

	require.NoError(t, tier.Put(ctx, "old1", 1, false))
	require.NoError(t, tier.Put(ctx, "old2", 2, false))
	clock.Advance(2 * time.Minute)

	require.NoError(t, tier.Put(ctx, "new", 3, true))
	assert.Equal(t, 2, tier.Len(), "skipTTL put leaves expired entries")

	require.NoError(t, tier.Put(ctx, "newer", 4, false))
	assert.Equal(t, 2, tier.Len())
	_, ok, _ := tier.Get(ctx, "new", false)
	assert.True(t, ok)

	stats := tier.Stats()
	assert.Equal(t, 2, stats.MaxSize)
	assert.Equal(t, uint64(1), stats.Hits)
}

func TestMemoryTier_Clear(t *testing.T) {
	ctx := context.Background()
	tier := NewMemoryTier[int](2, time.Minute, nil)
	require.NoError(t, tier.Put(ctx, "a", 1, false))
	require.NoError(t, tier.Clear(ctx))
	assert.Equal(t, 0, tier.Len())
}

func TestDurableTier(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	repo := memory.NewCacheRepository()
	tier := NewDurableTier[[]string]("news", repo, time.Minute, time.Hour, clock.Now, zap.NewNop())

	require.NoError(t, tier.Put(ctx, "AAPL", []string{"a", "b"}, false))

	got, ok, err := tier.Get(ctx, "AAPL", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	clock.Advance(time.Minute)

	_, ok, err = tier.Get(ctx, "AAPL", true)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = tier.Get(ctx, "AAPL", false)
	require.NoError(t, err)
	assert.False(t, ok)

	record, err := repo.Get(ctx, "news", Slot("AAPL"))
	require.NoError(t, err)
	assert.Nil(t, record, "expired entry deleted on read")
}

func TestDurableTier_UndecodableEntries(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	repo := memory.NewCacheRepository()
	tier := NewDurableTier[[]string]("news", repo, time.Hour, 0, clock.Now, zap.NewNop())

	require.NoError(t, repo.Put(ctx, repositories.CacheRecord{
		Cache: "news", Slot: Slot("BAD"), Payload: []byte("{not json"), StoredAt: clock.Now(), TTL: time.Hour,
	}))

	_, ok, err := tier.Get(ctx, "BAD", false)
	require.NoError(t, err)
	assert.False(t, ok)

	record, _ := repo.Get(ctx, "news", Slot("BAD"))
	assert.Nil(t, record)

	require.NoError(t, repo.Put(ctx, repositories.CacheRecord{
		Cache: "news", Slot: "junk", Payload: []byte(`{"shape":"wrong"}`), StoredAt: clock.Now(), TTL: time.Hour,
	}))
	require.NoError(t, tier.Put(ctx, "MSFT", []string{"x"}, false))

	records, err := repo.List(ctx, "news")
	require.NoError(t, err)
	require.Len(t, records, 1, "put sweeps undecodable entries")
	assert.Equal(t, Slot("MSFT"), records[0].Slot)
}

func TestDurableTier_SweepIsThrottled(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	repo := memory.NewCacheRepository()
	tier := NewDurableTier[int]("info", repo, time.Minute, 10*time.Minute, clock.Now, zap.NewNop())

	require.NoError(t, tier.Put(ctx, "a", 1, false)) // first put sweeps
	clock.Advance(2 * time.Minute)

	require.NoError(t, tier.Put(ctx, "b", 2, false)) // within interval, no sweep
	records, _ := repo.List(ctx, "info")
	assert.Len(t, records, 2)

	clock.Advance(10 * time.Minute)
	require.NoError(t, tier.Put(ctx, "c", 3, true)) // skipTTL never sweeps
	records, _ = repo.List(ctx, "info")
	assert.Len(t, records, 3)

	require.NoError(t, tier.Put(ctx, "d", 4, false))
	records, _ = repo.List(ctx, "info")
	assert.Len(t, records, 2, "a and b swept, c still fresh")
}

func TestDurableTier_SweepKeepsRewrittenEntries(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	repo := memory.NewCacheRepository()
	tier := NewDurableTier[int]("info", repo, time.Minute, time.Hour, clock.Now, zap.NewNop())

	require.NoError(t, tier.Put(ctx, "a", 1, true))
	clock.Advance(5 * time.Minute)
	require.NoError(t, tier.Put(ctx, "a", 2, true))

	deleted, err := tier.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	got, ok, err := tier.Get(ctx, "a", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestLayered_GetOrFetch(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	c := NewLayered[string]("search", Options[string]{Size: 10, TTL: time.Hour, Now: clock.Now}, memory.NewCacheRepository(), nil, zap.NewNop())

	var calls int
	fetch := func(context.Context) (string, error) {
		calls++
		return "value", nil
	}

	got, err := c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.Equal(t, 1, calls)

	got, err = c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.Equal(t, 1, calls, "warm key does not fetch")

	clock.Advance(time.Hour)
	_, err = c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "expired key fetches again")
}

func TestLayered_FetchErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewLayered[int]("info", Options[int]{Size: 10, TTL: time.Hour}, nil, nil, zap.NewNop())

	_, err := c.GetOrFetch(ctx, "k", func(context.Context) (int, error) {
		return 0, errors.New("vendor down")
	})
	require.Error(t, err)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLayered_Cacheable(t *testing.T) {
	ctx := context.Background()
	c := NewLayered[[]string]("search", Options[[]string]{
		Size:      10,
		TTL:       time.Hour,
		Cacheable: func(v []string) bool { return len(v) > 0 },
	}, nil, nil, zap.NewNop())

	var calls int
	fetch := func(context.Context) ([]string, error) {
		calls++
		return nil, nil
	}

	_, err := c.GetOrFetch(ctx, "empty", fetch)
	require.NoError(t, err)
	_, err = c.GetOrFetch(ctx, "empty", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "empty results are not cached")
}

func TestLayered_DurableHitBackfillsFast(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	repo := memory.NewCacheRepository()

	writer := NewLayered[string]("news", Options[string]{Size: 10, TTL: time.Hour, Now: clock.Now}, repo, nil, zap.NewNop())
	writer.Put(ctx, "AAPL", "stored")

	// a fresh process shares only the durable store
	reader := NewLayered[string]("news", Options[string]{Size: 10, TTL: time.Hour, Now: clock.Now}, repo, nil, zap.NewNop())
	got, ok := reader.Get(ctx, "AAPL")
	require.True(t, ok)
	assert.Equal(t, "stored", got)
	assert.Equal(t, 1, reader.fast.Len())

	_, err := reader.GetOrFetch(ctx, "AAPL", func(context.Context) (string, error) {
		t.Fatal("fetch must not run on a durable hit")
		return "", nil
	})
	require.NoError(t, err)
}

func TestLayered_DurableFailureDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	c := NewLayered[string]("news", Options[string]{Size: 10, TTL: time.Hour}, failingCacheRepository{}, nil, zap.NewNop())

	got, err := c.GetOrFetch(ctx, "k", func(context.Context) (string, error) { return "v", nil })
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	got, ok := c.Get(ctx, "k")
	assert.True(t, ok, "fast tier still serves")
	assert.Equal(t, "v", got)
}

func TestLayered_CoalescesConcurrentFetches(t *testing.T) {
	ctx := context.Background()
	c := NewLayered[int]("info", Options[int]{Size: 10, TTL: time.Hour}, nil, nil, zap.NewNop())

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrFetch(ctx, "k", fetch)
			if err == nil {
				results[i] = v
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestLayered_CancelledCallerDoesNotFailOthers(t *testing.T) {
	c := NewLayered[string]("search", Options[string]{Size: 10, TTL: time.Hour}, nil, nil, zap.NewNop())

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	fetch := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "v", nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(firstCtx, "k", fetch)
		firstErr <- err
	}()
	<-started

	type outcome struct {
		v   string
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		v, err := c.GetOrFetch(context.Background(), "k", fetch)
		second <- outcome{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "v", got.v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	cached, ok := c.Get(context.Background(), "k")
	assert.True(t, ok)
	assert.Equal(t, "v", cached)
}

func TestLayered_Clear(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCacheRepository()
	c := NewLayered[int]("info", Options[int]{Size: 10, TTL: time.Hour}, repo, nil, zap.NewNop())

	c.Put(ctx, "a", 1)
	require.NoError(t, c.Clear(ctx))

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestSweepAll(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	repo := memory.NewCacheRepository()

	news := NewLayered[int]("news", Options[int]{Size: 10, TTL: time.Minute, SweepInterval: time.Hour, Now: clock.Now}, repo, nil, zap.NewNop())
	info := NewLayered[int]("info", Options[int]{Size: 10, TTL: time.Minute, SweepInterval: time.Hour, Now: clock.Now}, repo, nil, zap.NewNop())
	news.Put(ctx, "a", 1)
	info.Put(ctx, "b", 2)
	info.Put(ctx, "c", 3)

	clock.Advance(time.Hour)

	assert.Equal(t, int64(3), SweepAll(ctx, zap.NewNop(), news, info))
}

func TestStartSweepWorker_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		StartSweepWorker(ctx, time.Millisecond, zap.NewNop())
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
