package filter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/pipeline"
	"github.com/gamesense/recsys/pkg/utils"
)

// Chain 是过滤 Node：按顺序执行多个 Stage。
//
// 失败策略是 fail-open：某个阶段报错时记日志并跳过该阶段（候选原样进入
// 下一阶段），过滤永远不能把一次推荐整个打挂。
type Chain struct {
	Stages []Stage
	Log    zerolog.Logger
}

func (n *Chain) Name() string {
	return "filter.chain"
}

func (n *Chain) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *Chain) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Stages) == 0 || len(items) == 0 {
		return items, nil
	}

	cur := items
	for _, stage := range n.Stages {
		next, err := stage.Apply(ctx, rctx, cur)
		if err != nil {
			n.Log.Warn().Err(err).Str("stage", stage.Name()).Msg("filter stage failed, passing through")
			continue
		}
		cur = next
		if len(cur) == 0 {
			break
		}
	}
	return cur, nil
}

// FilterStage 把一组单物品 Filter 适配成 Stage。
// 如果任何一个过滤器返回 true，该物品就会被过滤掉；
// 单个过滤器报错时跳过该过滤器（物品不因此被过滤）。
type FilterStage struct {
	Filters []Filter
}

func (s *FilterStage) Name() string { return "filter.items" }

func (s *FilterStage) Apply(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(s.Filters) == 0 || len(items) == 0 {
		return items, nil
	}

	out := make([]*core.Item, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		shouldFilter := false
		filterReason := ""

		// 依次检查每个过滤器
		for _, f := range s.Filters {
			ok, err := f.ShouldFilter(ctx, rctx, item)
			if err != nil {
				// 过滤器错误时记录但不中断流程
				continue
			}
			if ok {
				shouldFilter = true
				filterReason = f.Name()
				break
			}
		}

		if shouldFilter {
			// 记录过滤原因（可选，用于调试/观测）
			item.PutLabel("filtered", utils.Label{
				Value:  "true",
				Source: filterReason,
			})
			continue
		}

		out = append(out, item)
	}

	return out, nil
}
