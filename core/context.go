package core

import "github.com/gamesense/recsys/pkg/utils"

// PriceRange 是价格过滤区间（闭区间，单位与元数据 Price 一致）。
type PriceRange struct {
	Min float64
	Max float64
}

// Contains 判断价格是否落在区间内（闭区间）。
func (pr *PriceRange) Contains(price float64) bool {
	if pr == nil {
		return true
	}
	return price >= pr.Min && price <= pr.Max
}

// RecommendContext 承载用户/场景/实时信息，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	UserID string // 使用 string 类型（通用，支持所有 ID 格式）
	Scene  string

	// UserAge 是用户年龄，0 表示未知（未知时跳过年龄分级过滤）
	UserAge int

	// PriceRange 是请求级价格约束，nil 表示不限价格
	PriceRange *PriceRange

	// User 是强类型用户画像
	User *UserProfile

	// Labels 是用户级标签，可驱动整个 Pipeline 行为
	// 例如：新用户、重度用户、价格敏感等
	Labels map[string]utils.Label

	// Params 请求级上下文参数，包含策略名、召回规模等动态参数
	Params map[string]any
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
