package core

import (
	"strconv"
	"strings"
)

// ItemMetadata 是游戏元数据的强类型结构。
//
// 设计原则：
//   - 可缺省字段使用指针（Price、Metascore），区分"未知"与"零值"
//   - Genres/Tags 是小写无序集合，由写入方保证规范化
//   - 读取方对缺失字段一律宽松处理（缺失不拦截、取中性值）
type ItemMetadata struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Genres      []string `json:"genres"`
	Tags        []string `json:"tags"`
	Developer   string   `json:"developer"`
	Publisher   string   `json:"publisher"`
	ReleaseDate string   `json:"release_date"` // "2006-01-02" 或 "2006"
	Price       *float64 `json:"price"`        // nil 表示未知
	Metascore   *float64 `json:"metascore"`    // nil 表示未知，0-100
}

// ReleaseYear 解析发行年份。解析失败返回 (0, false)。
func (m *ItemMetadata) ReleaseYear() (int, bool) {
	if m == nil || m.ReleaseDate == "" {
		return 0, false
	}
	s := m.ReleaseDate
	if idx := strings.IndexByte(s, '-'); idx > 0 {
		s = s[:idx]
	}
	year, err := strconv.Atoi(s)
	if err != nil || year < 1950 || year > 2100 {
		return 0, false
	}
	return year, true
}

// 价格档位常量
const (
	PriceTierFree    = "free"
	PriceTierBudget  = "budget"  // < 20
	PriceTierMid     = "mid"     // < 40
	PriceTierPremium = "premium" // >= 40
)

// PriceTier 返回价格档位，价格未知返回 ""。
func (m *ItemMetadata) PriceTier() string {
	if m == nil || m.Price == nil {
		return ""
	}
	p := *m.Price
	switch {
	case p <= 0:
		return PriceTierFree
	case p < 20:
		return PriceTierBudget
	case p < 40:
		return PriceTierMid
	default:
		return PriceTierPremium
	}
}

// 发行年代常量
const (
	EraRecent  = "recent"  // >= 2020
	EraModern  = "modern"  // >= 2015
	EraClassic = "classic" // >= 2010
	EraRetro   = "retro"   // < 2010
)

// Era 返回发行年代档位，年份未知返回 ""。
func (m *ItemMetadata) Era() string {
	year, ok := m.ReleaseYear()
	if !ok {
		return ""
	}
	switch {
	case year >= 2020:
		return EraRecent
	case year >= 2015:
		return EraModern
	case year >= 2010:
		return EraClassic
	default:
		return EraRetro
	}
}

// GenreSet 返回小写 genre 集合，便于做交并运算。
func (m *ItemMetadata) GenreSet() map[string]bool {
	if m == nil || len(m.Genres) == 0 {
		return nil
	}
	set := make(map[string]bool, len(m.Genres))
	for _, g := range m.Genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			set[g] = true
		}
	}
	return set
}
