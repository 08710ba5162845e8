package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gamesense/recsys/feature"
	"github.com/gamesense/recsys/vector"
)

// Settings 是引擎配置面，零值字段在 Load/Normalize 时取默认。
type Settings struct {
	DefaultTopK       int `yaml:"default_topk"`        // 默认 10
	MaxTopK           int `yaml:"max_topk"`            // 默认 100
	CacheTTLSeconds   int `yaml:"cache_ttl_seconds"`   // 结果缓存 TTL，默认 3600
	RecallSize        int `yaml:"recall_size"`         // 召回规模，默认 500
	EmbeddingDim      int `yaml:"embedding_dim"`       // 默认 64
	MaxSequenceLength int `yaml:"max_sequence_length"` // 行为序列滑窗，默认 50

	// 算法自动选择阈值（累计交互次数）
	MinInteractionsForContent   int `yaml:"min_interactions_for_content"`   // 默认 3
	MinInteractionsForEmbedding int `yaml:"min_interactions_for_embedding"` // 默认 5

	// 业务过滤
	MaxSameDeveloper int `yaml:"max_same_developer"` // 默认 2
	MaxSameGenre     int `yaml:"max_same_genre"`     // 默认 3

	// 多样性重排
	DiversityWindow int `yaml:"diversity_window"` // 默认 5

	// 单次推荐各阶段的总超时（毫秒），0 表示不限制
	StageTimeoutMs int `yaml:"stage_timeout_ms"`

	// 向量模型名（embeddings:{model}:* 的 model 段）
	Model string `yaml:"model"` // 默认 "item2vec"

	Fusion feature.FusionConfig `yaml:"fusion"`
	Index  vector.Config        `yaml:"index"`
}

// DefaultSettings 返回默认配置。
func DefaultSettings() Settings {
	return Settings{
		DefaultTopK:                 10,
		MaxTopK:                     100,
		CacheTTLSeconds:             3600,
		RecallSize:                  500,
		EmbeddingDim:                64,
		MaxSequenceLength:           50,
		MinInteractionsForContent:   3,
		MinInteractionsForEmbedding: 5,
		MaxSameDeveloper:            2,
		MaxSameGenre:                3,
		DiversityWindow:             5,
		Model:                       "item2vec",
		Fusion:                      feature.DefaultFusionConfig(),
		Index:                       vector.DefaultConfig(64),
	}
}

// Normalize 用默认值补齐零值字段。
func (s *Settings) Normalize() {
	d := DefaultSettings()
	if s.DefaultTopK <= 0 {
		s.DefaultTopK = d.DefaultTopK
	}
	if s.MaxTopK <= 0 {
		s.MaxTopK = d.MaxTopK
	}
	if s.CacheTTLSeconds <= 0 {
		s.CacheTTLSeconds = d.CacheTTLSeconds
	}
	if s.RecallSize <= 0 {
		s.RecallSize = d.RecallSize
	}
	if s.EmbeddingDim <= 0 {
		s.EmbeddingDim = d.EmbeddingDim
	}
	if s.MaxSequenceLength <= 0 {
		s.MaxSequenceLength = d.MaxSequenceLength
	}
	if s.MinInteractionsForContent <= 0 {
		s.MinInteractionsForContent = d.MinInteractionsForContent
	}
	if s.MinInteractionsForEmbedding <= 0 {
		s.MinInteractionsForEmbedding = d.MinInteractionsForEmbedding
	}
	if s.MaxSameDeveloper <= 0 {
		s.MaxSameDeveloper = d.MaxSameDeveloper
	}
	if s.MaxSameGenre <= 0 {
		s.MaxSameGenre = d.MaxSameGenre
	}
	if s.DiversityWindow <= 0 {
		s.DiversityWindow = d.DiversityWindow
	}
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.Index.Dim <= 0 {
		s.Index.Dim = s.EmbeddingDim
	}
	if s.Index.Kind == "" {
		s.Index.Kind = d.Index.Kind
	}
}

// LoadSettings 从 YAML 文件加载配置并补齐默认值。
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	s.Normalize()
	return &s, nil
}
