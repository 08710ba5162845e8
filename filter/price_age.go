package filter

import (
	"context"
	"strings"

	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/feature"
)

// PriceStage 按请求的价格区间过滤（闭区间）。
// 请求没带价格区间时整段跳过；价格未知的游戏放行。
type PriceStage struct {
	Features *feature.FeatureStore
}

func (s *PriceStage) Name() string { return "filter.price" }

func (s *PriceStage) Apply(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if rctx == nil || rctx.PriceRange == nil || len(items) == 0 {
		return items, nil
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it != nil {
			ids = append(ids, it.ID)
		}
	}
	metas, err := s.Features.MetadataBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		meta := metas[it.ID]
		if meta == nil || meta.Price == nil {
			out = append(out, it)
			continue
		}
		if !rctx.PriceRange.Contains(*meta.Price) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// matureKeywords 是成人内容启发式关键词（匹配 genre 或 tag，忽略大小写）。
var matureKeywords = []string{"mature", "adult", "18+", "violence", "gore"}

// AgeStage 对未成年用户过滤成人内容。
// 用户年龄未知（0）或已成年时整段跳过；元数据缺失的游戏放行。
type AgeStage struct {
	Features *feature.FeatureStore
}

func (s *AgeStage) Name() string { return "filter.age" }

func (s *AgeStage) Apply(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if rctx == nil || rctx.UserAge <= 0 || rctx.UserAge >= 18 || len(items) == 0 {
		return items, nil
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it != nil {
			ids = append(ids, it.ID)
		}
	}
	metas, err := s.Features.MetadataBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		if isMature(metas[it.ID]) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func isMature(meta *core.ItemMetadata) bool {
	if meta == nil {
		return false
	}
	for _, field := range [][]string{meta.Genres, meta.Tags} {
		for _, v := range field {
			v = strings.ToLower(v)
			for _, kw := range matureKeywords {
				if strings.Contains(v, kw) {
					return true
				}
			}
		}
	}
	return false
}
