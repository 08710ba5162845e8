package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamesense/recsys/config"
	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/feature"
	"github.com/gamesense/recsys/filter"
	"github.com/gamesense/recsys/pipeline"
	"github.com/gamesense/recsys/pkg/utils"
	"github.com/gamesense/recsys/rank"
	"github.com/gamesense/recsys/recall"
	"github.com/gamesense/recsys/rerank"
	"github.com/gamesense/recsys/vector"
)

// 算法标识。popularity/content/embedding 是真实召回算法；
// cached/empty/error 是结果状态标记。
const (
	AlgorithmAuto       = "auto"
	AlgorithmPopularity = "popularity"
	AlgorithmContent    = "content"
	AlgorithmEmbedding  = "embedding"
	AlgorithmCached     = "cached"
	AlgorithmEmpty      = "empty"
	AlgorithmError      = "error"
)

// Request 是一次推荐请求。
type Request struct {
	UserID string
	TopK   int // <=0 取默认值，超上限截断

	// Algorithm 为空或 "auto" 时按用户活跃度自动选择；
	// 显式指定时跳过结果缓存（调试/实验用）
	Algorithm string

	// Strategy 是排序策略预设：default / quality / diversity
	Strategy string

	// DiversityStrength 覆盖策略默认的多样性强度（0-1），nil 用策略默认
	DiversityStrength *float64

	PriceRange *core.PriceRange
	UserAge    int // 0 表示未知
}

// Timings 是各阶段耗时（毫秒）。
type Timings struct {
	RecallMs int64
	RankMs   int64
	TotalMs  int64
}

// Response 是一次推荐结果。出错时 Algorithm 为 "error" 且 Items 为空，
// 不向调用方抛异常。
type Response struct {
	UserID    string
	Items     []*core.Item
	Algorithm string
	FromCache bool
	Timings   Timings
}

// Deps 是 Engine 的运行时依赖。
type Deps struct {
	Store core.KeyValueStore
	Index *vector.Manager        // 可为 nil：向量召回自动走暴力降级
	Stats core.UserStatsProvider // 可为 nil：以行为序列长度近似
	Log   zerolog.Logger
}

// Engine 是推荐编排器：算法自动选择 -> 召回 -> 排序 -> 过滤 -> 多样性 -> 截断，
// 外加结果缓存。所有依赖显式注入，可整体替换用于测试。
type Engine struct {
	cfg   config.Settings
	log   zerolog.Logger
	stats core.UserStatsProvider
	store core.KeyValueStore

	features *feature.FeatureStore
	cache    *feature.ResultCache

	popularity *recall.Popularity
	embedding  *recall.Embedding
}

func New(cfg config.Settings, deps Deps) *Engine {
	cfg.Normalize()

	features := feature.NewFeatureStore(deps.Store, feature.FeatureStoreConfig{
		MaxSequenceLength: cfg.MaxSequenceLength,
		Logger:            deps.Log,
	})

	return &Engine{
		cfg:      cfg,
		log:      deps.Log,
		stats:    deps.Stats,
		store:    deps.Store,
		features: features,
		cache:    feature.NewResultCache(deps.Store, cfg.CacheTTLSeconds),
		popularity: &recall.Popularity{
			Features: features,
			Limit:    cfg.RecallSize,
		},
		embedding: &recall.Embedding{
			Features: features,
			Index:    deps.Index,
			Model:    cfg.Model,
			Limit:    cfg.RecallSize,
			Fusion:   cfg.Fusion,
			Log:      deps.Log,
		},
	}
}

// Features 暴露底层特征存储（写入行为/元数据/向量时使用）。
func (e *Engine) Features() *feature.FeatureStore { return e.features }

// Recommend 执行一次推荐。永不 panic、永不返回 error：
// 任何阶段失败都折叠成 Algorithm = "error" 的空响应。
func (e *Engine) Recommend(ctx context.Context, req Request) (resp *Response) {
	start := time.Now()
	resp = &Response{UserID: req.UserID}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("user", req.UserID).Msg("recommend panicked")
			resp = &Response{UserID: req.UserID, Algorithm: AlgorithmError}
		}
		resp.Timings.TotalMs = time.Since(start).Milliseconds()
	}()

	if req.UserID == "" {
		resp.Algorithm = AlgorithmError
		return resp
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.cfg.DefaultTopK
	}
	if topK > e.cfg.MaxTopK {
		topK = e.cfg.MaxTopK
	}

	if e.cfg.StageTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.StageTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	auto := req.Algorithm == "" || req.Algorithm == AlgorithmAuto

	// 自动模式先查结果缓存；显式指定算法时总是重算
	if auto {
		if ids, err := e.cache.Get(ctx, req.UserID); err == nil && len(ids) > 0 {
			if len(ids) > topK {
				ids = ids[:topK]
			}
			items := make([]*core.Item, 0, len(ids))
			for _, id := range ids {
				it := core.NewItem(id)
				it.PutLabel("algorithm", utils.Label{Value: AlgorithmCached, Source: "engine"})
				items = append(items, it)
			}
			resp.Items = items
			resp.Algorithm = AlgorithmCached
			resp.FromCache = true
			return resp
		}
	}

	algorithm := req.Algorithm
	if auto {
		algorithm = e.selectAlgorithm(ctx, req.UserID)
	}

	rctx := &core.RecommendContext{
		UserID:     req.UserID,
		Scene:      "recommend",
		UserAge:    req.UserAge,
		PriceRange: req.PriceRange,
		Params: map[string]any{
			recall.ParamLimit:    e.cfg.RecallSize,
			rerank.ParamStrength: e.diversityStrength(req),
		},
	}
	// 画像随上下文透传，后续 Node 不必重复拉取行为序列
	if seq, err := e.features.Sequence(ctx, req.UserID, 0); err == nil && len(seq) > 0 {
		profile := core.NewUserProfile(req.UserID)
		profile.Age = req.UserAge
		profile.RecentPlayed = seq
		rctx.User = profile
	}

	recallStart := time.Now()
	items, err := e.recall(ctx, algorithm, rctx)
	resp.Timings.RecallMs = time.Since(recallStart).Milliseconds()
	if err != nil {
		e.log.Error().Err(err).Str("user", req.UserID).Str("algorithm", algorithm).Msg("recall failed")
		resp.Algorithm = AlgorithmError
		return resp
	}
	if len(items) == 0 {
		resp.Algorithm = AlgorithmEmpty
		return resp
	}

	rankStart := time.Now()
	items, err = e.buildPipeline(req, topK).Run(ctx, rctx, items)
	resp.Timings.RankMs = time.Since(rankStart).Milliseconds()
	if err != nil {
		e.log.Error().Err(err).Str("user", req.UserID).Msg("pipeline failed")
		resp.Algorithm = AlgorithmError
		return resp
	}

	for _, it := range items {
		it.PutLabel("algorithm", utils.Label{Value: algorithm, Source: "engine"})
	}
	resp.Items = items
	resp.Algorithm = algorithm

	// 只缓存自动模式的结果（ID 列表，不含分数）
	if auto && len(items) > 0 {
		ids := make([]string, len(items))
		for i, it := range items {
			ids[i] = it.ID
		}
		if err := e.cache.Put(ctx, req.UserID, ids); err != nil {
			e.log.Warn().Err(err).Str("user", req.UserID).Msg("result cache write failed")
		}
	}
	return resp
}

// selectAlgorithm 按累计交互次数选择召回算法：
// 冷启动（<3）用热门，过渡期（<5）用内容，活跃用户用向量。
func (e *Engine) selectAlgorithm(ctx context.Context, userID string) string {
	count := e.interactionCount(ctx, userID)
	switch {
	case count < e.cfg.MinInteractionsForContent:
		return AlgorithmPopularity
	case count < e.cfg.MinInteractionsForEmbedding:
		return AlgorithmContent
	default:
		return AlgorithmEmbedding
	}
}

// interactionCount 读取累计交互次数，未接入统计服务时退化为序列长度。
func (e *Engine) interactionCount(ctx context.Context, userID string) int {
	if e.stats != nil {
		count, err := e.stats.InteractionCount(ctx, userID)
		if err == nil {
			return count
		}
		e.log.Warn().Err(err).Str("user", userID).Msg("stats provider failed, using sequence length")
	}
	seq, err := e.features.Sequence(ctx, userID, 0)
	if err != nil {
		return 0
	}
	return len(seq)
}

func (e *Engine) recall(ctx context.Context, algorithm string, rctx *core.RecommendContext) ([]*core.Item, error) {
	switch algorithm {
	case AlgorithmEmbedding:
		return e.embedding.Recall(ctx, rctx)
	case AlgorithmContent:
		// 内容召回暂为热门别名：基于元数据的内容相似召回待离线侧产出
		return e.popularity.Recall(ctx, rctx)
	default:
		return e.popularity.Recall(ctx, rctx)
	}
}

// buildPipeline 组装排序后链路：排序 -> 业务过滤 -> 多样性重排 -> 截断。
func (e *Engine) buildPipeline(req Request, topK int) *pipeline.Pipeline {
	stages := []filter.Stage{
		&filter.PlayedStage{Features: e.features},
		&filter.FilterStage{Filters: []filter.Filter{
			&filter.UserBlockFilter{Store: filter.NewStoreAdapter(e.store)},
		}},
		&filter.DeveloperCapStage{Features: e.features, Max: e.cfg.MaxSameDeveloper},
		&filter.GenreCapStage{Features: e.features, Max: e.cfg.MaxSameGenre},
		&filter.PriceStage{Features: e.features},
		&filter.AgeStage{Features: e.features},
	}

	return &pipeline.Pipeline{
		Nodes: []pipeline.Node{
			&rank.RuleRanker{
				Features: e.features,
				Weights:  rank.WeightsForStrategy(req.Strategy),
				Log:      e.log,
			},
			&filter.Chain{Stages: stages, Log: e.log},
			&rerank.Diversity{
				Features: e.features,
				Strength: e.diversityStrength(req),
				Window:   e.cfg.DiversityWindow,
				Log:      e.log,
			},
			&rerank.TopNNode{N: topK},
		},
	}
}

// diversityStrength 解析多样性强度：显式覆盖 > 策略默认。
func (e *Engine) diversityStrength(req Request) float64 {
	if req.DiversityStrength != nil {
		s := *req.DiversityStrength
		if s < 0 {
			s = 0
		}
		if s > 1 {
			s = 1
		}
		return s
	}
	switch req.Strategy {
	case rank.StrategyQuality:
		return 0.2
	case rank.StrategyDiversity:
		return 0.8
	default:
		return 0.5
	}
}

// SimilarItems 返回与指定游戏最相似的 topK 个游戏。
func (e *Engine) SimilarItems(ctx context.Context, itemID string, topK int) ([]*core.Item, error) {
	if topK <= 0 {
		topK = e.cfg.DefaultTopK
	}
	if topK > e.cfg.MaxTopK {
		topK = e.cfg.MaxTopK
	}
	return e.embedding.SimilarItems(ctx, itemID, topK)
}

// Popular 返回热门游戏，genre 非空时限定类型。
func (e *Engine) Popular(ctx context.Context, limit int, genre string) ([]*core.Item, error) {
	if limit <= 0 {
		limit = e.cfg.DefaultTopK
	}
	if limit > e.cfg.MaxTopK {
		limit = e.cfg.MaxTopK
	}
	if genre != "" {
		return e.popularity.ByGenre(ctx, genre, limit)
	}
	rctx := &core.RecommendContext{Params: map[string]any{recall.ParamLimit: limit}}
	return e.popularity.Recall(ctx, rctx)
}

// Trending 返回近期趋势游戏（当前为热门榜别名，见 recall.Popularity.Trending）。
func (e *Engine) Trending(ctx context.Context, limit int, window string) ([]*core.Item, error) {
	if limit <= 0 {
		limit = e.cfg.DefaultTopK
	}
	if limit > e.cfg.MaxTopK {
		limit = e.cfg.MaxTopK
	}
	return e.popularity.Trending(ctx, limit, window)
}

// Block 把游戏加入用户的"不感兴趣"列表并失效其结果缓存。
func (e *Engine) Block(ctx context.Context, userID, itemID string) error {
	if err := e.store.SAdd(ctx, "user_block:"+userID, itemID); err != nil {
		return err
	}
	if err := e.cache.Invalidate(ctx, userID); err != nil {
		e.log.Warn().Err(err).Str("user", userID).Msg("cache invalidation failed")
	}
	return nil
}

// OnInteraction 记录一次用户交互并失效其结果缓存，
// 保证下一次自动推荐反映最新行为。
func (e *Engine) OnInteraction(ctx context.Context, userID, itemID string) error {
	if err := e.features.AppendInteraction(ctx, userID, itemID); err != nil {
		return err
	}
	if err := e.cache.Invalidate(ctx, userID); err != nil {
		e.log.Warn().Err(err).Str("user", userID).Msg("cache invalidation failed")
	}
	return nil
}
