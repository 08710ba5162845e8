package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/gamesense/recsys/core"
)

// Influence 是一条对推荐结果有贡献的历史行为。
// Weight 按位置衰减：第 i 近的行为权重 1/(i+1)。
type Influence struct {
	ItemID string
	Title  string
	Weight float64
}

// Explanation 解释某个游戏为什么被推荐给某个用户。
type Explanation struct {
	UserID     string
	ItemID     string
	Reason     string
	Influences []Influence
}

// 参与解释的最近行为数
const explainWindow = 5

// Explain 生成推荐解释：取最近行为与目标游戏的类型交集组织理由，
// 无行为历史时退化为热门推荐话术。解释是尽力而为的：
// 元数据缺失只影响文案，不报错。
func (e *Engine) Explain(ctx context.Context, userID, itemID string) (*Explanation, error) {
	if userID == "" || itemID == "" {
		return nil, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput, "user id and item id required")
	}

	exp := &Explanation{UserID: userID, ItemID: itemID}

	seq, err := e.features.Sequence(ctx, userID, explainWindow)
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		exp.Reason = "Popular among players right now"
		return exp, nil
	}

	ids := make([]string, 0, len(seq)+1)
	ids = append(ids, seq...)
	ids = append(ids, itemID)
	metas, err := e.features.MetadataBatch(ctx, ids)
	if err != nil {
		metas = map[string]*core.ItemMetadata{}
	}

	target := metas[itemID]
	targetGenres := target.GenreSet()

	var sharedGenres []string
	sharedSeen := make(map[string]bool)
	for i, id := range seq {
		inf := Influence{ItemID: id, Weight: 1.0 / float64(i+1)}
		if m := metas[id]; m != nil {
			inf.Title = m.Title
			for _, g := range m.Genres {
				if targetGenres[strings.ToLower(g)] && !sharedSeen[strings.ToLower(g)] {
					sharedSeen[strings.ToLower(g)] = true
					sharedGenres = append(sharedGenres, g)
				}
			}
		}
		exp.Influences = append(exp.Influences, inf)
	}

	exp.Reason = buildReason(target, exp.Influences, sharedGenres)
	return exp, nil
}

// buildReason 把影响来源组织成一句话。优先提及共同类型，
// 其次提及最近玩过的游戏名，最后兜底通用话术。
func buildReason(target *core.ItemMetadata, influences []Influence, sharedGenres []string) string {
	var recent []string
	for _, inf := range influences {
		if inf.Title != "" {
			recent = append(recent, inf.Title)
		}
		if len(recent) >= 2 {
			break
		}
	}

	switch {
	case len(sharedGenres) > 0 && len(recent) > 0:
		return fmt.Sprintf("Because you recently played %s, and this shares the %s genre",
			strings.Join(recent, " and "), strings.Join(sharedGenres, "/"))
	case len(recent) > 0:
		return fmt.Sprintf("Based on your recent activity with %s", strings.Join(recent, " and "))
	case target != nil && len(target.Genres) > 0:
		return fmt.Sprintf("Matches your interest in %s games", strings.Join(target.Genres, "/"))
	default:
		return "Based on your recent play history"
	}
}
