package recall

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gamesense/recsys/core"
)

// BatchRecall 对多个用户并发执行同一召回源（离线批量生成推荐时使用）。
// 单个用户失败不中断整批，该用户在结果里对应空列表；
// 结果 map 与输入用户一一对应。
func BatchRecall(ctx context.Context, src Source, userIDs []string, maxConcurrent int) map[string][]*core.Item {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	var (
		mu    sync.Mutex
		out   = make(map[string][]*core.Item, len(userIDs))
		eg, _ = errgroup.WithContext(ctx)
	)
	eg.SetLimit(maxConcurrent)

	for _, userID := range userIDs {
		uid := userID
		eg.Go(func() error {
			items, err := src.Recall(ctx, &core.RecommendContext{UserID: uid})
			if err != nil {
				// 单用户失败不中断整批，占位空列表
				items = nil
			}
			mu.Lock()
			out[uid] = items
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return out
}
