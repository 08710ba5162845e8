package recall

import (
	"context"

	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/feature"
	"github.com/gamesense/recsys/pipeline"
	"github.com/gamesense/recsys/pkg/utils"
)

// Popularity 是热门召回源：从热门榜（离线任务定期整榜替换）读取候选。
// 冷启动用户的默认召回，同时兜底向量召回不可用的场景。
// Popularity 同时实现了 Source 和 Node 接口，可以直接在 Pipeline 中使用。
type Popularity struct {
	Features *feature.FeatureStore
	Limit    int // 默认召回规模，可被 rctx.Params[ParamLimit] 覆盖
}

func (r *Popularity) Name() string        { return "recall.popularity" }
func (r *Popularity) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (r *Popularity) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

// Recall 实现 Source 接口
func (r *Popularity) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	limit := limitFromContext(rctx, r.Limit)
	members, err := r.Features.Popularity(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Item, 0, len(members))
	for _, mem := range members {
		it := core.NewItem(mem.Member)
		it.Score = mem.Score
		it.PutLabel("recall_source", utils.Label{Value: "popularity", Source: "recall"})
		out = append(out, it)
	}
	return out, nil
}

// ByGenre 返回某类型下的热门游戏：类型倒排索引与热门榜求交，保持热门榜顺序。
// 不在热门榜上的同类型游戏排在末尾（零分）。
func (r *Popularity) ByGenre(ctx context.Context, genre string, limit int) ([]*core.Item, error) {
	ids, err := r.Features.ItemsByGenre(ctx, genre)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	inGenre := make(map[string]bool, len(ids))
	for _, id := range ids {
		inGenre[id] = true
	}

	members, err := r.Features.Popularity(ctx, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*core.Item, 0, limit)
	ranked := make(map[string]bool, len(members))
	for _, mem := range members {
		if !inGenre[mem.Member] {
			continue
		}
		it := core.NewItem(mem.Member)
		it.Score = mem.Score
		it.PutLabel("recall_source", utils.Label{Value: "popularity.genre", Source: "recall"})
		out = append(out, it)
		ranked[mem.Member] = true
		if limit > 0 && len(out) >= limit {
			return out, nil
		}
	}
	for _, id := range ids {
		if ranked[id] {
			continue
		}
		it := core.NewItem(id)
		it.PutLabel("recall_source", utils.Label{Value: "popularity.genre", Source: "recall"})
		out = append(out, it)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Trending 返回近期上升趋势的游戏。
//
// 当前实现是热门榜的别名：榜单本身带 1 天 TTL，由离线任务整榜替换，
// 已经只反映近期热度；独立的分窗口趋势榜待离线侧产出后再接入。
func (r *Popularity) Trending(ctx context.Context, limit int, window string) ([]*core.Item, error) {
	_ = window
	members, err := r.Features.Popularity(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Item, 0, len(members))
	for _, mem := range members {
		it := core.NewItem(mem.Member)
		it.Score = mem.Score
		it.PutLabel("recall_source", utils.Label{Value: "trending", Source: "recall"})
		out = append(out, it)
	}
	return out, nil
}
