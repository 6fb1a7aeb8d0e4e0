package market

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockengine/market/providers"
)

func testRows() []providers.SpotRow {
	return []providers.SpotRow{
		{Code: "600000", Name: "浦发银行", Price: 7.5, Change60: 5, ChangeYTD: 12},
		{Code: "600519", Name: "贵州茅台", Price: 1800, Change60: math.NaN(), ChangeYTD: 30},
		{Code: "000001", Name: "平安银行", Price: 12.5, Change60: 9, ChangeYTD: math.NaN()},
		{Code: "000858", Name: "五粮液", Price: 150, Change60: 1, ChangeYTD: -3},
	}
}

// testCache 返回可控时钟与可控拉取结果的缓存
func testCache(ttl time.Duration) (*SnapshotCache, *int, *error, *time.Time) {
	fetches := 0
	var fetchErr error
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	c := NewSnapshotCache(func(ctx context.Context) ([]providers.SpotRow, error) {
		fetches++
		if fetchErr != nil {
			return nil, fetchErr
		}
		return testRows(), nil
	}, ttl)
	c.now = func() time.Time { return now }
	return c, &fetches, &fetchErr, &now
}

func TestSnapshotCacheServesFreshWithoutRefetch(t *testing.T) {
	c, fetches, _, now := testCache(600 * time.Second)
	ctx := context.Background()

	first, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, *fetches)

	*now = now.Add(599 * time.Second)
	second, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, *fetches, "fresh reads must not hit upstream")

	// 有效期内返回同一快照对象
	assert.Same(t, &first[0], &second[0])
}

func TestSnapshotCacheRefreshesAfterTTL(t *testing.T) {
	c, fetches, _, now := testCache(600 * time.Second)
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)

	*now = now.Add(601 * time.Second)
	_, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, *fetches)
}

func TestSnapshotCacheServesStaleOnRefreshFailure(t *testing.T) {
	c, fetches, fetchErr, now := testCache(600 * time.Second)
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)

	*fetchErr = errors.New("upstream down")
	*now = now.Add(601 * time.Second)

	rows, err := c.Get(ctx)
	require.NoError(t, err, "stale data beats an error")
	assert.Len(t, rows, 4)
	assert.Equal(t, 2, *fetches, "exactly one refresh attempt per expired read")
}

func TestSnapshotCacheFailsWithoutAnyData(t *testing.T) {
	c, fetches, fetchErr, _ := testCache(600 * time.Second)
	*fetchErr = errors.New("upstream down")

	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSnapshotUnavailable)
	assert.Equal(t, 1, *fetches)
}

func TestSnapshotCacheLookup(t *testing.T) {
	c, _, _, _ := testCache(600 * time.Second)
	ctx := context.Background()

	row, ok, err := c.Lookup(ctx, "600519")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "贵州茅台", row.Name)

	_, ok, err = c.Lookup(ctx, "999999")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotCachePeekDoesNotRefresh(t *testing.T) {
	c, fetches, _, _ := testCache(600 * time.Second)

	assert.Nil(t, c.Peek())
	assert.Equal(t, 0, *fetches)

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Peek(), 4)
	assert.Equal(t, 1, *fetches)
}

func TestSnapshotCacheStats(t *testing.T) {
	c, _, _, now := testCache(600 * time.Second)

	stats := c.Stats()
	assert.Equal(t, 0, stats.Rows)
	assert.True(t, stats.FetchedAt.IsZero())

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	*now = now.Add(30 * time.Second)
	stats = c.Stats()
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 30.0, stats.AgeSeconds)
	assert.Equal(t, 600.0, stats.TTLSeconds)
}

func TestSnapshotCacheConcurrentExpiryFetchesOnce(t *testing.T) {
	var fetches int32
	c := NewSnapshotCache(func(ctx context.Context) ([]providers.SpotRow, error) {
		atomic.AddInt32(&fetches, 1)
		// 拉慢拉取路径，放大并发窗口
		time.Sleep(20 * time.Millisecond)
		return testRows(), nil
	}, 600*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := c.Get(context.Background())
			assert.NoError(t, err)
			assert.Len(t, rows, 4)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&fetches),
		"concurrent callers on an expired cache trigger a single upstream fetch")
}

func TestTopByChangeDropsNaNAndSortsDescending(t *testing.T) {
	top := TopByChange(testRows(), 60, 2)

	require.Len(t, top, 2)
	assert.Equal(t, 9.0, top[0].IncreaseRate)
	assert.Equal(t, "000001", top[0].Code)
	assert.Equal(t, 5.0, top[1].IncreaseRate)
	assert.Equal(t, "600000", top[1].Code)
}

func TestTopByChangeUsesYTDColumnForLongPeriods(t *testing.T) {
	top := TopByChange(testRows(), 120, 10)

	// 000001的年初至今涨幅缺失，被剔除
	require.Len(t, top, 3)
	assert.Equal(t, "600519", top[0].Code)
	assert.Equal(t, 30.0, top[0].IncreaseRate)
	assert.Equal(t, "000858", top[2].Code)
}
