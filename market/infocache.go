package market

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"stockengine/market/providers"
)

// InfoFetcher 个股基础信息查询函数
type InfoFetcher func(ctx context.Context, symbol string) (*providers.SecurityInfo, error)

// InfoCache 个股基础信息缓存。行业、ROE等字段变化缓慢，
// 用带过期的LRU做按代码的短期记忆，避免每个请求都打上游。
// 历史K线与指标不经过该缓存，始终按请求现算。
type InfoCache struct {
	lru   *expirable.LRU[string, providers.SecurityInfo]
	fetch InfoFetcher
}

// NewInfoCache 创建信息缓存。size为容量上限，ttl为条目有效期。
func NewInfoCache(fetch InfoFetcher, size int, ttl time.Duration) *InfoCache {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &InfoCache{
		lru:   expirable.NewLRU[string, providers.SecurityInfo](size, nil, ttl),
		fetch: fetch,
	}
}

// Get 返回个股基础信息，缓存未命中时查询上游
func (c *InfoCache) Get(ctx context.Context, symbol string) (providers.SecurityInfo, error) {
	if info, ok := c.lru.Get(symbol); ok {
		return info, nil
	}

	info, err := c.fetch(ctx, symbol)
	if err != nil {
		return providers.SecurityInfo{}, err
	}
	c.lru.Add(symbol, *info)
	return *info, nil
}

// Len 当前缓存条目数
func (c *InfoCache) Len() int {
	return c.lru.Len()
}
