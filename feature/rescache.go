package feature

import (
	"context"
	"encoding/json"

	"github.com/gamesense/recsys/core"
)

// ResultCache 缓存自动模式下的推荐结果（仅 ID 列表，不缓存分数）。
// 分数依赖请求时的策略与上下文，缓存命中时由调用方按位置还原展示顺序。
type ResultCache struct {
	kv  core.KeyValueStore
	ttl int // 秒
}

const defaultResultCacheTTL = 3600

func NewResultCache(kv core.KeyValueStore, ttlSeconds int) *ResultCache {
	if ttlSeconds <= 0 {
		ttlSeconds = defaultResultCacheTTL
	}
	return &ResultCache{kv: kv, ttl: ttlSeconds}
}

// Get 返回缓存的推荐 ID 列表，未命中返回 (nil, nil)。
func (c *ResultCache) Get(ctx context.Context, userID string) ([]string, error) {
	data, err := c.kv.Get(ctx, ResultCacheKey(userID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, nil
	}
	return ids, nil
}

// Put 写入推荐 ID 列表。
func (c *ResultCache) Put(ctx context.Context, userID string, itemIDs []string) error {
	data, err := json.Marshal(itemIDs)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, ResultCacheKey(userID), data, c.ttl)
}

// Invalidate 失效某用户的缓存（新交互后调用，保证下次推荐反映最新行为）。
func (c *ResultCache) Invalidate(ctx context.Context, userID string) error {
	return c.kv.Delete(ctx, ResultCacheKey(userID))
}
