package filter

import (
	"context"

	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/feature"
)

// PlayedStage 移除用户已交互过的游戏（行为序列滑窗内）。
// 向量召回在检索时也做了排除，这里兜底热门等其他召回路径。
type PlayedStage struct {
	Features *feature.FeatureStore
}

func (s *PlayedStage) Name() string { return "filter.played" }

func (s *PlayedStage) Apply(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if rctx == nil || rctx.UserID == "" || len(items) == 0 {
		return items, nil
	}

	seq, err := s.Features.Sequence(ctx, rctx.UserID, 0)
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return items, nil
	}
	played := make(map[string]bool, len(seq))
	for _, id := range seq {
		played[id] = true
	}

	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil || played[it.ID] {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}
