package feature

import (
	"context"
	"math"
)

// FusionConfig 控制动态用户向量融合。int 零值与 nil 指针取默认；
// DecayRate/Weight 显式设 0 是合法取值，与"未设置"用指针区分。
type FusionConfig struct {
	// MinInteractions 行为数低于此阈值不融合，直接用基础向量（冷启动保护）
	MinInteractions int `yaml:"min_interactions"` // 默认 3
	// MaxItems 参与融合的最近行为数上限
	MaxItems int `yaml:"max_items"` // 默认 10
	// DecayRate 位置衰减率：第 j 条行为权重 exp(-DecayRate*j)。
	// nil 取默认 0.1；0 表示各位置等权
	DecayRate *float64 `yaml:"decay_rate"`
	// Weight 行为向量在融合结果中的占比。
	// nil 取默认 0.1；0 表示只用基础向量
	Weight *float64 `yaml:"weight"`
}

// DefaultFusionConfig 返回默认融合参数。
func DefaultFusionConfig() FusionConfig {
	decay, weight := 0.1, 0.1
	return FusionConfig{
		MinInteractions: 3,
		MaxItems:        10,
		DecayRate:       &decay,
		Weight:          &weight,
	}
}

func (c FusionConfig) withDefaults() FusionConfig {
	d := DefaultFusionConfig()
	if c.MinInteractions <= 0 {
		c.MinInteractions = d.MinInteractions
	}
	if c.MaxItems <= 0 {
		c.MaxItems = d.MaxItems
	}
	if c.DecayRate == nil {
		c.DecayRate = d.DecayRate
	}
	if c.Weight == nil {
		c.Weight = d.Weight
	}
	return c
}

// Fuse 将用户基础向量与最近行为的物品向量融合，刻画短期兴趣漂移。
//
// 算法：
//  1. 行为数不足 MinInteractions：返回基础向量（冷启动不融合）
//  2. 取最近 MaxItems 条行为，位置权重 exp(-DecayRate*j)（j 为序列位置，0 最新），
//     没有向量的行为跳过（其权重不参与归一化）
//  3. 权重归一化后加权求和得到行为向量
//  4. fused = (1-Weight)*base + Weight*行为向量
//  5. 把 fused 缩放回基础向量的模长（融合只改方向，不改模长）
//
// 纯函数：不触存储、不修改入参，两次调用结果一致。
func Fuse(base []float32, seq []string, vecs map[string][]float32, cfg FusionConfig) []float32 {
	if len(base) == 0 {
		return nil
	}
	cfg = cfg.withDefaults()

	out := make([]float32, len(base))
	copy(out, base)
	if len(seq) < cfg.MinInteractions {
		return out
	}

	window := seq
	if len(window) > cfg.MaxItems {
		window = window[:cfg.MaxItems]
	}

	decay := *cfg.DecayRate
	blend := *cfg.Weight

	weights := make([]float64, 0, len(window))
	vectors := make([][]float32, 0, len(window))
	var weightSum float64
	for j, id := range window {
		vec, ok := vecs[id]
		if !ok || len(vec) != len(base) {
			continue
		}
		w := math.Exp(-decay * float64(j))
		weights = append(weights, w)
		vectors = append(vectors, vec)
		weightSum += w
	}
	if len(vectors) == 0 || weightSum == 0 {
		return out
	}

	interaction := make([]float64, len(base))
	for i, vec := range vectors {
		w := weights[i] / weightSum
		for d, v := range vec {
			interaction[d] += w * float64(v)
		}
	}

	baseNorm := norm32(base)
	fused := make([]float64, len(base))
	for d := range fused {
		fused[d] = (1-blend)*float64(base[d]) + blend*interaction[d]
	}
	fusedNorm := norm64(fused)
	if fusedNorm == 0 || baseNorm == 0 {
		return out
	}
	scale := baseNorm / fusedNorm
	for d := range out {
		out[d] = float32(fused[d] * scale)
	}
	return out
}

// DynamicUserEmbedding 读取用户基础向量与最近行为向量并融合。
// 用户没有基础向量时返回 (nil, nil)。
func (fs *FeatureStore) DynamicUserEmbedding(ctx context.Context, model, userID string, cfg FusionConfig) ([]float32, error) {
	base, err := fs.Embedding(ctx, model, EmbeddingKindUser, userID)
	if err != nil {
		return nil, err
	}
	if len(base) == 0 {
		return nil, nil
	}

	seq, err := fs.Sequence(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if len(seq) < cfg.MinInteractions {
		return base, nil
	}

	window := seq
	if len(window) > cfg.MaxItems {
		window = window[:cfg.MaxItems]
	}
	vecs, err := fs.EmbeddingsBatch(ctx, model, EmbeddingKindItem, window)
	if err != nil {
		return nil, err
	}
	return Fuse(base, seq, vecs, cfg), nil
}

func norm32(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func norm64(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
