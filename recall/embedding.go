package recall

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/feature"
	"github.com/gamesense/recsys/pipeline"
	"github.com/gamesense/recsys/pkg/utils"
	"github.com/gamesense/recsys/vector"
)

// Embedding 是向量召回源：融合短期行为的用户向量 -> ANN 检索。
//
// 检索路径：
//   - 索引就绪：走 vector.Manager（已排除用户玩过的游戏）
//   - 索引未就绪或检索失败：降级为暴力检索（热门榜候选池 + 批量向量 + 余弦），
//     只记日志不报错
//
// 用户没有基础向量时返回空结果（由上层决定兜底策略）。
type Embedding struct {
	Features *feature.FeatureStore
	Index    *vector.Manager
	Model    string // 向量模型名，用于定位 embeddings:{model}:* Hash
	Limit    int    // 默认召回规模
	Fusion   feature.FusionConfig
	Log      zerolog.Logger
}

func (r *Embedding) Name() string        { return "recall.embedding" }
func (r *Embedding) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (r *Embedding) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

// Recall 实现 Source 接口
func (r *Embedding) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if rctx == nil || rctx.UserID == "" {
		return nil, nil
	}
	limit := limitFromContext(rctx, r.Limit)

	fused, err := r.Features.DynamicUserEmbedding(ctx, r.Model, rctx.UserID, r.Fusion)
	if err != nil {
		return nil, err
	}
	if len(fused) == 0 {
		return nil, nil
	}

	seq, err := r.Features.Sequence(ctx, rctx.UserID, 0)
	if err != nil {
		return nil, err
	}
	exclude := make(map[string]bool, len(seq))
	for _, id := range seq {
		exclude[id] = true
	}

	scored, path := r.search(ctx, fused, limit, exclude)
	out := make([]*core.Item, 0, len(scored))
	for _, s := range scored {
		it := core.NewItem(s.ID)
		it.Score = s.Score
		it.PutLabel("recall_source", utils.Label{Value: "embedding", Source: "recall"})
		it.PutLabel("recall_path", utils.Label{Value: path, Source: "recall"})
		out = append(out, it)
	}
	return out, nil
}

// search 先走索引，失败降级暴力检索。返回结果和实际使用的路径。
func (r *Embedding) search(ctx context.Context, query []float32, limit int, exclude map[string]bool) ([]core.ScoredItem, string) {
	if r.Index != nil && r.Index.Ready() {
		scored, err := r.Index.Search(ctx, query, limit, exclude)
		if err == nil {
			return scored, "index"
		}
		r.Log.Warn().Err(err).Msg("index search failed, falling back to brute force")
	}
	scored, err := r.bruteForce(ctx, query, limit, exclude)
	if err != nil {
		r.Log.Warn().Err(err).Msg("brute force recall failed")
		return nil, "fallback"
	}
	return scored, "fallback"
}

// bruteForce 是无索引的精确检索：热门榜做候选池，批量取向量算余弦。
func (r *Embedding) bruteForce(ctx context.Context, query []float32, limit int, exclude map[string]bool) ([]core.ScoredItem, error) {
	members, err := r.Features.Popularity(ctx, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, mem := range members {
		if exclude[mem.Member] {
			continue
		}
		ids = append(ids, mem.Member)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	vecs, err := r.Features.EmbeddingsBatch(ctx, r.Model, feature.EmbeddingKindItem, ids)
	if err != nil {
		return nil, err
	}

	scored := make([]core.ScoredItem, 0, len(vecs))
	for _, id := range ids {
		vec, ok := vecs[id]
		if !ok || len(vec) != len(query) {
			continue
		}
		scored = append(scored, core.ScoredItem{ID: id, Score: cosine(query, vec)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// SimilarItems 返回与指定游戏最相似的 topK 个游戏（不含其自身）。
func (r *Embedding) SimilarItems(ctx context.Context, itemID string, topK int) ([]*core.Item, error) {
	var scored []core.ScoredItem
	path := "index"

	if r.Index != nil && r.Index.Ready() {
		var err error
		scored, err = r.Index.SearchByItem(ctx, itemID, topK, nil)
		if err != nil {
			r.Log.Warn().Err(err).Str("item", itemID).Msg("similar items via index failed")
			scored = nil
		}
	}
	if scored == nil {
		vec, err := r.Features.Embedding(ctx, r.Model, feature.EmbeddingKindItem, itemID)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, nil
		}
		scored, err = r.bruteForce(ctx, vec, topK, map[string]bool{itemID: true})
		if err != nil {
			return nil, err
		}
		path = "fallback"
	}

	out := make([]*core.Item, 0, len(scored))
	for _, s := range scored {
		it := core.NewItem(s.ID)
		it.Score = s.Score
		it.PutLabel("recall_source", utils.Label{Value: "similar", Source: "recall"})
		it.PutLabel("recall_path", utils.Label{Value: path, Source: "recall"})
		out = append(out, it)
	}
	return out, nil
}

// ByUserSequence 基于行为序列的逐条邻居聚合召回：对最近 seedCount 条行为
// 分别检索相似游戏，按相似度累加聚合，排除用户已交互的游戏。
func (r *Embedding) ByUserSequence(ctx context.Context, userID string, seedCount, topK int) ([]*core.Item, error) {
	seq, err := r.Features.Sequence(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(seq))
	for _, id := range seq {
		seen[id] = true
	}

	seeds := seq
	if seedCount > 0 && len(seeds) > seedCount {
		seeds = seeds[:seedCount]
	}

	agg := make(map[string]float64)
	for _, seed := range seeds {
		neighbors, err := r.SimilarItems(ctx, seed, topK)
		if err != nil {
			r.Log.Warn().Err(err).Str("seed", seed).Msg("sequence recall seed failed")
			continue
		}
		for _, it := range neighbors {
			if seen[it.ID] {
				continue
			}
			agg[it.ID] += it.Score
		}
	}
	if len(agg) == 0 {
		return nil, nil
	}

	scored := make([]core.ScoredItem, 0, len(agg))
	for id, score := range agg {
		scored = append(scored, core.ScoredItem{ID: id, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}

	out := make([]*core.Item, 0, len(scored))
	for _, s := range scored {
		it := core.NewItem(s.ID)
		it.Score = s.Score
		it.PutLabel("recall_source", utils.Label{Value: "sequence", Source: "recall"})
		out = append(out, it)
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
