package rerank

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/feature"
	"github.com/gamesense/recsys/pipeline"
	"github.com/gamesense/recsys/pkg/utils"
)

// ParamStrength 是 rctx.Params 中多样性强度的 key，调用方按请求覆盖默认强度。
const ParamStrength = "diversity_strength"

// Diversity 是多样性重排 Node：对排序结果的头部窗口做贪心重排，
// 在相关性和多样性之间按 Strength 插值。
//
// 算法：
//  1. 窗口内第一个（分数最高的）候选作为种子直接入选
//  2. 反复从剩余候选中选 combined 最大的一个：
//     combined = (1-s)*原始分 + s*多样性分
//     多样性分衡量候选与已入选集合的差异（类型/开发商/价位/年代加权）
//  3. 窗口外的尾部保持原序拼接，不移除任何候选
//
// Strength = 0 时退化为原序；越接近 1 头部越分散。
type Diversity struct {
	Features *feature.FeatureStore
	Strength float64 // 默认 0.5，可被 rctx.Params[ParamStrength] 覆盖
	Window   int     // 贪心重排窗口，默认 5
	Log      zerolog.Logger
}

// 多样性分量权重
const (
	weightGenre     = 0.3
	weightDeveloper = 0.2
	weightPrice     = 0.1
	weightEra       = 0.2
)

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) <= 1 {
		return items, nil
	}

	strength := n.strength(rctx)
	if strength <= 0 {
		return items, nil
	}
	window := n.Window
	if window <= 0 {
		window = 5
	}
	if window > len(items) {
		window = len(items)
	}

	ids := make([]string, 0, window)
	for _, it := range items[:window] {
		if it != nil {
			ids = append(ids, it.ID)
		}
	}
	metas, err := n.Features.MetadataBatch(ctx, ids)
	if err != nil {
		// 元数据不可用时跳过重排，保持原序
		n.Log.Warn().Err(err).Msg("metadata unavailable, skipping diversity rerank")
		return items, nil
	}

	head := make([]*core.Item, window)
	copy(head, items[:window])

	// 种子：分数最高的候选直接入选
	selected := []*core.Item{head[0]}
	remaining := head[1:]

	for len(remaining) > 0 {
		bestIdx := 0
		bestScore := -1.0
		for i, it := range remaining {
			if it == nil {
				continue
			}
			div := n.diversityScore(metas[it.ID], selected, metas)
			combined := (1-strength)*it.Score + strength*div
			if combined > bestScore {
				bestScore = combined
				bestIdx = i
			}
		}
		pick := remaining[bestIdx]
		if pick != nil {
			pick.PutLabel("diversified", utils.Label{Value: "true", Source: "rerank"})
		}
		selected = append(selected, pick)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	out := make([]*core.Item, 0, len(items))
	out = append(out, selected...)
	out = append(out, items[window:]...)
	return out, nil
}

func (n *Diversity) strength(rctx *core.RecommendContext) float64 {
	s := n.Strength
	if rctx != nil && rctx.Params != nil {
		if v, ok := rctx.Params[ParamStrength].(float64); ok {
			s = v
		}
	}
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return s
}

// diversityScore 衡量候选与已入选集合的差异，0-1，越大越不同。
// 四个分量加权平均：类型（1-平均 Jaccard）、开发商、价位档、年代档。
func (n *Diversity) diversityScore(meta *core.ItemMetadata, selected []*core.Item, metas map[string]*core.ItemMetadata) float64 {
	genre := n.genreDiversity(meta, selected, metas)
	dev := n.developerDiversity(meta, selected, metas)
	price := n.tierDiversity(meta.PriceTier(), selected, metas, (*core.ItemMetadata).PriceTier, 0.3)
	era := n.tierDiversity(meta.Era(), selected, metas, (*core.ItemMetadata).Era, 0.4)

	total := weightGenre + weightDeveloper + weightPrice + weightEra
	return (weightGenre*genre + weightDeveloper*dev + weightPrice*price + weightEra*era) / total
}

func (n *Diversity) genreDiversity(meta *core.ItemMetadata, selected []*core.Item, metas map[string]*core.ItemMetadata) float64 {
	genres := meta.GenreSet()
	if len(genres) == 0 {
		return 0.5
	}
	if len(selected) == 0 {
		return 1.0
	}
	var sum float64
	for _, it := range selected {
		if it == nil {
			continue
		}
		sum += jaccard(genres, metas[it.ID].GenreSet())
	}
	return 1.0 - sum/float64(len(selected))
}

func (n *Diversity) developerDiversity(meta *core.ItemMetadata, selected []*core.Item, metas map[string]*core.ItemMetadata) float64 {
	if meta == nil || meta.Developer == "" {
		return 0.5
	}
	for _, it := range selected {
		if it == nil {
			continue
		}
		other := metas[it.ID]
		if other != nil && other.Developer == meta.Developer {
			return 0.0
		}
	}
	return 1.0
}

// tierDiversity 是价位档/年代档共用的离散档位差异：同档 samePenalty，异档 1.0，未知 0.5。
func (n *Diversity) tierDiversity(tier string, selected []*core.Item, metas map[string]*core.ItemMetadata, get func(*core.ItemMetadata) string, samePenalty float64) float64 {
	if tier == "" {
		return 0.5
	}
	for _, it := range selected {
		if it == nil {
			continue
		}
		if get(metas[it.ID]) == tier {
			return samePenalty
		}
	}
	return 1.0
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
