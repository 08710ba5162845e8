package filter

import (
	"context"

	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/feature"
)

// DeveloperCapStage 限制同一开发商的游戏数量（贪心：按当前顺序保留前 Max 个）。
// 元数据缺失或开发商未知的游戏不受限制。
type DeveloperCapStage struct {
	Features *feature.FeatureStore
	Max      int // 默认 2
}

func (s *DeveloperCapStage) Name() string { return "filter.developer_cap" }

func (s *DeveloperCapStage) Apply(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	max := s.Max
	if max <= 0 {
		max = 2
	}

	metas, err := s.metadata(ctx, items)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		meta := metas[it.ID]
		if meta == nil || meta.Developer == "" {
			out = append(out, it)
			continue
		}
		if counts[meta.Developer] >= max {
			continue
		}
		counts[meta.Developer]++
		out = append(out, it)
	}
	return out, nil
}

func (s *DeveloperCapStage) metadata(ctx context.Context, items []*core.Item) (map[string]*core.ItemMetadata, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it != nil {
			ids = append(ids, it.ID)
		}
	}
	return s.Features.MetadataBatch(ctx, ids)
}

// GenreCapStage 限制单一类型的游戏数量（贪心）。
// 准入条件是游戏的所有类型计数都低于上限；准入后每个类型的计数都 +1。
// 元数据缺失或无类型的游戏不受限制。
type GenreCapStage struct {
	Features *feature.FeatureStore
	Max      int // 默认 3
}

func (s *GenreCapStage) Name() string { return "filter.genre_cap" }

func (s *GenreCapStage) Apply(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	max := s.Max
	if max <= 0 {
		max = 3
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

	counts := make(map[string]int)
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		meta := metas[it.ID]
		genres := meta.GenreSet()
		if len(genres) == 0 {
			out = append(out, it)
			continue
		}

		admit := true
		for genre := range genres {
			if counts[genre] >= max {
				admit = false
				break
			}
		}
		if !admit {
			continue
		}
		for genre := range genres {
			counts[genre]++
		}
		out = append(out, it)
	}
	return out, nil
}
