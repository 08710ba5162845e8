package recall

import (
	"context"

	"github.com/gamesense/recsys/core"
)

// Source 表示一个可复用的召回源（热门/类型/向量/...）。
// 你可以把它理解为"可并发 fan-out 的策略单元"。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

// ParamLimit 是 rctx.Params 中召回规模参数的 key，召回源按此覆盖默认规模。
const ParamLimit = "recall_limit"

// limitFromContext 从请求参数读取召回规模，取不到用 fallback。
func limitFromContext(rctx *core.RecommendContext, fallback int) int {
	if rctx == nil || rctx.Params == nil {
		return fallback
	}
	switch v := rctx.Params[ParamLimit].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}
