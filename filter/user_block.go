package filter

import (
	"context"

	"github.com/gamesense/recsys/core"
)

// UserBlockFilter 过滤用户标记"不感兴趣"的游戏。
// 拉黑列表按用户维度存放，key 为 {KeyPrefix}:{UserID}，
// 形态与黑名单一致（集合或 JSON 数组，见 StoreAdapter.GetBlacklist）。
type UserBlockFilter struct {
	Store *StoreAdapter

	// KeyPrefix 默认 "user_block"
	KeyPrefix string
}

func (f *UserBlockFilter) Name() string { return "filter.user_block" }

func (f *UserBlockFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil || rctx == nil || rctx.UserID == "" || f.Store == nil {
		return false, nil
	}

	prefix := f.KeyPrefix
	if prefix == "" {
		prefix = "user_block"
	}
	blocked, err := f.Store.GetBlacklist(ctx, prefix+":"+rctx.UserID)
	if err != nil {
		// 拉黑列表读取失败不阻断推荐
		return false, nil
	}
	for _, id := range blocked {
		if item.ID == id {
			return true, nil
		}
	}
	return false, nil
}
