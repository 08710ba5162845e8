package filter

import (
	"context"

	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/pkg/dsl"
)

// RuleFilter 是表达式过滤器：运营可用 CEL 表达式定义排除规则，
// 表达式求值为 true 的游戏被过滤掉。
//
// 示例：
//   - `item.score < 0.1` → 过滤低分候选
//   - `label.recall_source == "popularity" && item.score < 0.5`
type RuleFilter struct {
	// Expr 是 CEL 排除表达式，为空则不过滤
	Expr string
}

func (f *RuleFilter) Name() string {
	return "filter.rule"
}

func (f *RuleFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if f.Expr == "" || item == nil {
		return false, nil
	}
	matched, err := dsl.NewEval(item, rctx).Evaluate(f.Expr)
	if err != nil {
		return false, err
	}
	return matched, nil
}
