package core

import "time"

// UserProfile 是用户画像的核心抽象。
//
// 它不是某一个 Node，而是：
//  - 被所有 Node 共享
//  - 驱动 Recall / Rank / ReRank
//  - 可以被 Label 打标、回写、持续演进
//
// 设计要点：
//  维度          作用
//  静态属性      冷启动 / 年龄分级过滤
//  长期偏好      Recall / Rank 核心
//  短期行为      实时调权
//  实验桶        策略切换
type UserProfile struct {
	UserID string

	// 静态属性（冷启动 / 基础过滤）
	Age      int    // 年龄，0 表示未知
	Location string // 地理位置

	// 偏好画像（长期）- Recall / Rank 核心
	// key: genre/tag，value: weight (0-1)
	GenreWeights map[string]float64

	// 行为统计（短期）- 实时调权
	RecentPlayed []string // 最近交互的游戏 ID（新 -> 旧）

	// 控制与实验（策略切换）
	Buckets map[string]string // AB / 实验桶，例如 {"diversity": "strong"}

	// 元数据
	UpdateTime time.Time // 最后更新时间
}

// NewUserProfile 创建一个新的用户画像。
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:       userID,
		GenreWeights: make(map[string]float64),
		RecentPlayed: make([]string, 0),
		Buckets:      make(map[string]string),
		UpdateTime:   time.Now(),
	}
}

// UpdateGenreWeight 更新用户类型偏好权重。
func (p *UserProfile) UpdateGenreWeight(genre string, weight float64) {
	if p.GenreWeights == nil {
		p.GenreWeights = make(map[string]float64)
	}
	p.GenreWeights[genre] = weight
	p.UpdateTime = time.Now()
}

// AddRecentPlayed 添加最近交互记录（头部插入，超出 maxSize 截断尾部）。
func (p *UserProfile) AddRecentPlayed(itemID string, maxSize int) {
	p.RecentPlayed = append([]string{itemID}, p.RecentPlayed...)
	if maxSize > 0 && len(p.RecentPlayed) > maxSize {
		p.RecentPlayed = p.RecentPlayed[:maxSize]
	}
	p.UpdateTime = time.Now()
}

// SetBucket 设置实验桶。
func (p *UserProfile) SetBucket(key, value string) {
	if p.Buckets == nil {
		p.Buckets = make(map[string]string)
	}
	p.Buckets[key] = value
}

// GetBucket 获取实验桶值。
func (p *UserProfile) GetBucket(key string) string {
	if p.Buckets == nil {
		return ""
	}
	return p.Buckets[key]
}
