package filter

import (
	"context"
	"encoding/json"

	"github.com/gamesense/recsys/core"
)

// StoreAdapter 将 core.Store 适配为过滤器所需的存储接口。
// 黑名单支持两种存放形态：集合（运营实时增删）或 JSON 数组（离线任务整体写入）。
type StoreAdapter struct {
	store core.Store
}

// NewStoreAdapter 创建一个 core.Store 适配器。
func NewStoreAdapter(s core.Store) *StoreAdapter {
	return &StoreAdapter{store: s}
}

// GetBlacklist 从 Store 读取黑名单。
// 优先用集合读取（KeyValueStore），否则按 JSON 数组解析普通 key。
func (a *StoreAdapter) GetBlacklist(ctx context.Context, key string) ([]string, error) {
	if kv, ok := a.store.(core.KeyValueStore); ok {
		members, err := kv.SMembers(ctx, key)
		if err == nil && len(members) > 0 {
			return members, nil
		}
	}

	data, err := a.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
