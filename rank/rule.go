package rank

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/feature"
	"github.com/gamesense/recsys/pipeline"
	"github.com/gamesense/recsys/pkg/utils"
)

// Weights 是规则排序的线性权重：召回分 / 类型匹配 / 质量分。
type Weights struct {
	Recall  float64
	Genre   float64
	Quality float64
}

// 策略预设
const (
	StrategyDefault   = "default"
	StrategyQuality   = "quality"
	StrategyDiversity = "diversity"
)

// WeightsForStrategy 返回策略预设的权重。未知策略名取 default。
func WeightsForStrategy(strategy string) Weights {
	switch strategy {
	case StrategyQuality:
		return Weights{Recall: 0.3, Genre: 0.2, Quality: 0.5}
	case StrategyDiversity:
		return Weights{Recall: 0.4, Genre: 0.3, Quality: 0.3}
	default:
		return Weights{Recall: 0.5, Genre: 0.3, Quality: 0.2}
	}
}

// RuleRanker 是规则排序 Node：线性加权 + 时间衰减 + 位置平滑惩罚。
//
// 每个候选的综合分：
//
//	score = wR*召回分 + wG*类型匹配度 + wQ*质量分
//
// 类型匹配度是候选 genres 与用户偏好 genres（近 20 条行为统计的 Top3）
// 的 Jaccard 相似度；质量分是 metascore/100，缺失取中性值 0.5。
// 可解析发行年份的候选再乘时间衰减 max(0.95^年龄, 0.7)。
// 没有元数据的候选保留召回分原样参与排序。
//
// 排序后施加位置平滑惩罚 score *= 1 - factor*i/n 并重排，
// 压缩头部分差，给后续多样性重排留空间。
type RuleRanker struct {
	Features *feature.FeatureStore
	Weights  Weights

	PositionFactor float64 // 位置惩罚因子，默认 0.1
	PrefSeqLen     int     // 统计偏好的行为条数，默认 20
	TopGenres      int     // 偏好 genre 数，默认 3
	Log            zerolog.Logger
}

func (n *RuleRanker) Name() string        { return "rank.rule" }
func (n *RuleRanker) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *RuleRanker) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	prefGenres := n.userGenres(ctx, rctx)

	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it != nil {
			ids = append(ids, it.ID)
		}
	}
	metas, err := n.Features.MetadataBatch(ctx, ids)
	if err != nil {
		// 元数据不可用时退化为按召回分排序
		n.Log.Warn().Err(err).Msg("metadata unavailable, ranking on recall score only")
		metas = nil
	}

	currentYear := time.Now().Year()
	w := n.Weights
	if w.Recall == 0 && w.Genre == 0 && w.Quality == 0 {
		w = WeightsForStrategy(StrategyDefault)
	}

	for _, it := range items {
		if it == nil {
			continue
		}
		meta := metas[it.ID]
		if meta == nil {
			// 无元数据：保留召回分
			it.PutLabel("rank_model", utils.Label{Value: "rule.passthrough", Source: "rank"})
			continue
		}

		quality := 0.5
		if meta.Metascore != nil {
			quality = *meta.Metascore / 100
		}
		genreScore := jaccard(meta.GenreSet(), prefGenres)

		score := w.Recall*it.Score + w.Genre*genreScore + w.Quality*quality
		if year, ok := meta.ReleaseYear(); ok {
			age := currentYear - year
			if age < 0 {
				age = 0
			}
			decay := math.Pow(0.95, float64(age))
			if decay < 0.7 {
				decay = 0.7
			}
			score *= decay
		}
		it.Score = score
		it.PutLabel("rank_model", utils.Label{Value: "rule", Source: "rank"})
	}

	sortByScore(items)

	// 位置平滑惩罚：位置越靠前惩罚越小，随后重排
	factor := n.PositionFactor
	if factor <= 0 {
		factor = 0.1
	}
	total := float64(len(items))
	for i, it := range items {
		if it == nil {
			continue
		}
		it.Score *= 1.0 - factor*float64(i)/total
	}
	sortByScore(items)

	return items, nil
}

// userGenres 统计用户近期行为中出现最多的 genre（Top N）。
func (n *RuleRanker) userGenres(ctx context.Context, rctx *core.RecommendContext) map[string]bool {
	if rctx == nil || rctx.UserID == "" {
		return nil
	}
	prefLen := n.PrefSeqLen
	if prefLen <= 0 {
		prefLen = 20
	}
	topN := n.TopGenres
	if topN <= 0 {
		topN = 3
	}

	var seq []string
	if rctx.User != nil && len(rctx.User.RecentPlayed) > 0 {
		seq = rctx.User.RecentPlayed
		if len(seq) > prefLen {
			seq = seq[:prefLen]
		}
	} else {
		var err error
		seq, err = n.Features.Sequence(ctx, rctx.UserID, prefLen)
		if err != nil || len(seq) == 0 {
			return nil
		}
	}
	metas, err := n.Features.MetadataBatch(ctx, seq)
	if err != nil {
		return nil
	}

	counts := make(map[string]int)
	for _, id := range seq {
		meta := metas[id]
		if meta == nil {
			continue
		}
		for genre := range meta.GenreSet() {
			counts[genre]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	type genreCount struct {
		genre string
		count int
	}
	ranked := make([]genreCount, 0, len(counts))
	for genre, count := range counts {
		ranked = append(ranked, genreCount{genre, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].genre < ranked[j].genre
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	prefs := make(map[string]bool, len(ranked))
	for _, gc := range ranked {
		prefs[gc.genre] = true
	}
	return prefs
}

func sortByScore(items []*core.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i] == nil || items[j] == nil {
			return items[j] == nil
		}
		return items[i].Score > items[j].Score
	})
}

// jaccard 计算两个集合的 Jaccard 相似度，任一为空返回 0。
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
