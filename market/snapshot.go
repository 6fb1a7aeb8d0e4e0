package market

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"stockengine/market/providers"
)

// ErrSnapshotUnavailable 数据源不可用且无历史快照可供降级
var ErrSnapshotUnavailable = errors.New("market snapshot unavailable")

// SnapshotFetcher 全市场快照查询函数
type SnapshotFetcher func(ctx context.Context) ([]providers.SpotRow, error)

// SnapshotCache 全市场快照缓存。整表整存整取，过期后同步刷新；
// 刷新失败时若有旧数据则降级返回旧快照（宁旧勿断）。
// 互斥锁串行化刷新路径，并发过期最多触发一次上游拉取。
type SnapshotCache struct {
	mu        sync.Mutex
	rows      []providers.SpotRow
	index     map[string]int
	fetchedAt time.Time
	ttl       time.Duration
	fetch     SnapshotFetcher
	now       func() time.Time
}

// SnapshotStats 缓存状态
type SnapshotStats struct {
	Rows       int       `json:"rows"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds float64   `json:"age_seconds"`
	TTLSeconds float64   `json:"ttl_seconds"`
}

// NewSnapshotCache 创建快照缓存，ttl为缓存有效期
func NewSnapshotCache(fetch SnapshotFetcher, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		fetch: fetch,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get 返回全市场快照。缓存有效期内直接返回，过期或为空时同步刷新。
// 返回的切片为缓存内部的不可变引用，调用方不得修改。
func (c *SnapshotCache) Get(ctx context.Context) ([]providers.SpotRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rows != nil && c.now().Sub(c.fetchedAt) <= c.ttl {
		return c.rows, nil
	}

	rows, err := c.fetch(ctx)
	if err != nil {
		if c.rows != nil {
			// 刷新失败但有旧数据：静默降级
			zap.L().Warn("snapshot refresh failed, serving stale data",
				zap.Time("fetched_at", c.fetchedAt), zap.Error(err))
			return c.rows, nil
		}
		return nil, errors.Join(ErrSnapshotUnavailable, err)
	}

	c.rows = rows
	c.fetchedAt = c.now()
	c.rebuildIndex()
	zap.L().Info("market snapshot refreshed", zap.Int("rows", len(rows)))
	return c.rows, nil
}

// Lookup 在快照中按代码查找单行，必要时触发刷新
func (c *SnapshotCache) Lookup(ctx context.Context, code string) (providers.SpotRow, bool, error) {
	if _, err := c.Get(ctx); err != nil {
		return providers.SpotRow{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[code]
	if !ok {
		return providers.SpotRow{}, false, nil
	}
	return c.rows[i], true, nil
}

// Peek 返回当前缓存内容，不触发刷新。用于状态上报与推送。
func (c *SnapshotCache) Peek() []providers.SpotRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

// SetTTL 调整缓存有效期，配合配置热加载
func (c *SnapshotCache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Stats 缓存状态
func (c *SnapshotCache) Stats() SnapshotStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := SnapshotStats{
		Rows:       len(c.rows),
		FetchedAt:  c.fetchedAt,
		TTLSeconds: c.ttl.Seconds(),
	}
	if !c.fetchedAt.IsZero() {
		stats.AgeSeconds = c.now().Sub(c.fetchedAt).Seconds()
	}
	return stats
}

func (c *SnapshotCache) rebuildIndex() {
	c.index = make(map[string]int, len(c.rows))
	for i, row := range c.rows {
		c.index[row.Code] = i
	}
}

// RankEntry 涨幅榜单条目
type RankEntry struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	IncreaseRate float64 `json:"increase_rate"`
}

// TopByChange 按周期对应的涨跌幅列排序取前limit名。
// period<=60使用60日涨跌幅，否则使用年初至今涨跌幅（近似120/250日RPS）。
// 该列为NaN的行被剔除。
func TopByChange(rows []providers.SpotRow, period, limit int) []RankEntry {
	col := func(r providers.SpotRow) float64 { return r.Change60 }
	if period > 60 {
		col = func(r providers.SpotRow) float64 { return r.ChangeYTD }
	}

	ranked := make([]RankEntry, 0, len(rows))
	for _, r := range rows {
		v := col(r)
		if math.IsNaN(v) {
			continue
		}
		ranked = append(ranked, RankEntry{Code: r.Code, Name: r.Name, IncreaseRate: v})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].IncreaseRate > ranked[j].IncreaseRate
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
