package feature

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gamesense/recsys/core"
)

// FeatureStore 是特征读写的统一入口：行为序列、Embedding、热门榜、
// 元数据、类型倒排索引。底层是 core.KeyValueStore（Redis 或内存实现）。
//
// 读取约定：数据缺失返回 (nil, nil)，不视为错误；只有存储本身
// 不可用时才返回 error。
type FeatureStore struct {
	kv  core.KeyValueStore
	log zerolog.Logger

	maxSeqLen int // 行为序列滑窗长度
	seqTTL    int // 行为序列过期时间（秒）
}

// FeatureStoreConfig 是 FeatureStore 的可选配置，零值取默认。
type FeatureStoreConfig struct {
	MaxSequenceLength int // 默认 50
	SequenceTTL       int // 默认 30 天
	Logger            zerolog.Logger
}

const (
	defaultMaxSequenceLength = 50
	defaultSequenceTTL       = 30 * 24 * 3600
	popularityTTL            = 24 * 3600
)

func NewFeatureStore(kv core.KeyValueStore, cfg FeatureStoreConfig) *FeatureStore {
	if cfg.MaxSequenceLength <= 0 {
		cfg.MaxSequenceLength = defaultMaxSequenceLength
	}
	if cfg.SequenceTTL <= 0 {
		cfg.SequenceTTL = defaultSequenceTTL
	}
	return &FeatureStore{
		kv:        kv,
		log:       cfg.Logger,
		maxSeqLen: cfg.MaxSequenceLength,
		seqTTL:    cfg.SequenceTTL,
	}
}

// MaxSequenceLength 返回行为序列滑窗长度。
func (fs *FeatureStore) MaxSequenceLength() int { return fs.maxSeqLen }

// AppendInteraction 记录一次用户交互：头插 + 截断滑窗 + 续期。
// 不去重：同一游戏重复交互会多次出现，位置权重天然体现"最近性"。
func (fs *FeatureStore) AppendInteraction(ctx context.Context, userID, itemID string) error {
	key := SequenceKey(userID)
	if err := fs.kv.LPush(ctx, key, itemID); err != nil {
		return err
	}
	if err := fs.kv.LTrim(ctx, key, 0, int64(fs.maxSeqLen)-1); err != nil {
		return err
	}
	return fs.kv.Expire(ctx, key, fs.seqTTL)
}

// Sequence 返回用户行为序列（新 -> 旧）。limit <= 0 返回整个滑窗。
func (fs *FeatureStore) Sequence(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 || limit > fs.maxSeqLen {
		limit = fs.maxSeqLen
	}
	return fs.kv.LRange(ctx, SequenceKey(userID), 0, int64(limit)-1)
}

// CacheEmbeddings 批量写入向量。kind 取 EmbeddingKindUser / EmbeddingKindItem。
func (fs *FeatureStore) CacheEmbeddings(ctx context.Context, model, kind string, vecs map[string][]float32) error {
	if len(vecs) == 0 {
		return nil
	}
	kvs := make(map[string][]byte, len(vecs))
	for id, vec := range vecs {
		data, err := json.Marshal(vec)
		if err != nil {
			return err
		}
		kvs[id] = data
	}
	return fs.kv.HMSet(ctx, EmbeddingKey(model, kind), kvs)
}

// Embedding 读取单个向量，缺失返回 (nil, nil)。
func (fs *FeatureStore) Embedding(ctx context.Context, model, kind, id string) ([]float32, error) {
	data, err := fs.kv.HGet(ctx, EmbeddingKey(model, kind), id)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		fs.log.Warn().Str("model", model).Str("kind", kind).Str("id", id).Msg("undecodable embedding")
		return nil, nil
	}
	return vec, nil
}

// EmbeddingsBatch 批量读取向量。缺失或无法解码的 ID 不出现在结果中。
func (fs *FeatureStore) EmbeddingsBatch(ctx context.Context, model, kind string, ids []string) (map[string][]float32, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw, err := fs.kv.HMGet(ctx, EmbeddingKey(model, kind), ids)
	if err != nil {
		return nil, err
	}
	result := make(map[string][]float32, len(raw))
	for id, data := range raw {
		var vec []float32
		if err := json.Unmarshal(data, &vec); err != nil {
			fs.log.Warn().Str("model", model).Str("id", id).Msg("undecodable embedding")
			continue
		}
		result[id] = vec
	}
	return result, nil
}

// AllItemEmbeddings 读取全量物品向量快照（用于索引重建）。
func (fs *FeatureStore) AllItemEmbeddings(ctx context.Context, model string) (map[string][]float32, error) {
	raw, err := fs.kv.HGetAll(ctx, EmbeddingKey(model, EmbeddingKindItem))
	if err != nil {
		return nil, err
	}
	result := make(map[string][]float32, len(raw))
	for id, data := range raw {
		var vec []float32
		if err := json.Unmarshal(data, &vec); err != nil {
			fs.log.Warn().Str("model", model).Str("id", id).Msg("undecodable embedding")
			continue
		}
		result[id] = vec
	}
	return result, nil
}

// SetPopularity 原子替换全局热门榜，带 1 天 TTL（离线任务不续期则自然失效）。
func (fs *FeatureStore) SetPopularity(ctx context.Context, scores map[string]float64) error {
	return fs.kv.ZReplace(ctx, PopularityKey, scores, popularityTTL)
}

// Popularity 按热度降序返回热门榜，limit <= 0 返回全榜。
func (fs *FeatureStore) Popularity(ctx context.Context, limit int) ([]core.ScoredMember, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	return fs.kv.ZRangeWithScores(ctx, PopularityKey, 0, stop)
}

// CacheMetadata 批量写入游戏元数据。
func (fs *FeatureStore) CacheMetadata(ctx context.Context, metas []*core.ItemMetadata) error {
	if len(metas) == 0 {
		return nil
	}
	kvs := make(map[string][]byte, len(metas))
	for _, meta := range metas {
		if meta == nil || meta.ID == "" {
			continue
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		kvs[MetadataKey(meta.ID)] = data
	}
	return fs.kv.BatchSet(ctx, kvs)
}

// Metadata 读取单个游戏元数据，缺失返回 (nil, nil)。
func (fs *FeatureStore) Metadata(ctx context.Context, itemID string) (*core.ItemMetadata, error) {
	data, err := fs.kv.Get(ctx, MetadataKey(itemID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var meta core.ItemMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		fs.log.Warn().Str("item", itemID).Msg("undecodable metadata")
		return nil, nil
	}
	return &meta, nil
}

// MetadataBatch 批量读取元数据。缺失的 ID 不出现在结果中。
func (fs *FeatureStore) MetadataBatch(ctx context.Context, itemIDs []string) (map[string]*core.ItemMetadata, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = MetadataKey(id)
	}
	raw, err := fs.kv.BatchGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*core.ItemMetadata, len(raw))
	for _, id := range itemIDs {
		data, ok := raw[MetadataKey(id)]
		if !ok {
			continue
		}
		var meta core.ItemMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			fs.log.Warn().Str("item", id).Msg("undecodable metadata")
			continue
		}
		result[id] = &meta
	}
	return result, nil
}

// BuildGenreIndex 根据元数据重建类型倒排索引（每个 genre 一个集合，原子替换）。
func (fs *FeatureStore) BuildGenreIndex(ctx context.Context, metas []*core.ItemMetadata) error {
	byGenre := make(map[string][]string)
	for _, meta := range metas {
		if meta == nil || meta.ID == "" {
			continue
		}
		for genre := range meta.GenreSet() {
			byGenre[genre] = append(byGenre[genre], meta.ID)
		}
	}
	for genre, ids := range byGenre {
		if err := fs.kv.SReplace(ctx, GenreIndexKey(genre), ids); err != nil {
			return err
		}
	}
	return nil
}

// ItemsByGenre 返回某类型下的全部游戏 ID。
func (fs *FeatureStore) ItemsByGenre(ctx context.Context, genre string) ([]string, error) {
	return fs.kv.SMembers(ctx, GenreIndexKey(strings.ToLower(strings.TrimSpace(genre))))
}
