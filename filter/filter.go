package filter

import (
	"context"

	"github.com/gamesense/recsys/core"
)

// Filter 是单物品过滤器的抽象接口，用于判断一个 Item 是否应该被过滤掉。
// 返回 true 表示应该过滤（移除），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断 item 是否应该被过滤
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}

// Stage 是列表级过滤阶段的抽象接口。与 Filter 的区别：Stage 看得到整个
// 候选列表，可以做需要跨物品状态的过滤（同厂商数量上限、类型配额等）。
//
// 约定：实现必须只做"减法"（输出是输入的子序列，不新增、不重排）。
type Stage interface {
	// Name 返回阶段名称
	Name() string

	// Apply 过滤候选列表
	Apply(ctx context.Context, rctx *core.RecommendContext, items []*core.Item) ([]*core.Item, error)
}
