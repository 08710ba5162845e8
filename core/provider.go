package core

import "context"

// UserStatsProvider 提供用户全量统计信息（通常来自业务侧关系库，只读消费）。
//
// 与行为序列（滑动窗口，最多保留近 N 条）不同，InteractionCount 是
// 用户生命周期内的累计交互次数，用于算法自动选择（冷启动判定）。
// 未接入时引擎退化为以行为序列长度近似。
type UserStatsProvider interface {
	// InteractionCount 返回用户累计交互次数
	InteractionCount(ctx context.Context, userID string) (int, error)
}
