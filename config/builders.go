package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamesense/recsys/core"
	"github.com/gamesense/recsys/feature"
	"github.com/gamesense/recsys/filter"
	"github.com/gamesense/recsys/pipeline"
	"github.com/gamesense/recsys/pkg/conv"
	"github.com/gamesense/recsys/rank"
	"github.com/gamesense/recsys/recall"
	"github.com/gamesense/recsys/rerank"
	"github.com/gamesense/recsys/vector"
)

// Deps 是内置 Node 构建器的运行时依赖（存储、索引等无法从配置文件构造的部分）。
type Deps struct {
	Store    core.Store // 黑名单/拉黑等过滤器直接读 Store
	Features *feature.FeatureStore
	Index    *vector.Manager
	Model    string
	Log      zerolog.Logger
}

// RegisterBuiltins 注册全部内置 Node 构建器。
// 调用后即可用 DefaultFactory() + pipeline.Config 配置驱动组装 Pipeline。
func RegisterBuiltins(deps Deps) {
	Register("recall.popularity", func(cfg map[string]interface{}) (pipeline.Node, error) {
		return &recall.Popularity{
			Features: deps.Features,
			Limit:    int(conv.ConfigGetInt64(cfg, "limit", 500)),
		}, nil
	})

	Register("recall.embedding", func(cfg map[string]interface{}) (pipeline.Node, error) {
		return &recall.Embedding{
			Features: deps.Features,
			Index:    deps.Index,
			Model:    conv.ConfigGet[string](cfg, "model", deps.Model),
			Limit:    int(conv.ConfigGetInt64(cfg, "limit", 500)),
			Log:      deps.Log,
		}, nil
	})

	Register("recall.fanout", func(cfg map[string]interface{}) (pipeline.Node, error) {
		sourcesConfig, ok := cfg["sources"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("sources not found or invalid")
		}
		sources := make([]recall.Source, 0, len(sourcesConfig))
		for _, sc := range sourcesConfig {
			sourceMap, ok := sc.(map[string]interface{})
			if !ok {
				continue
			}
			sourceType := conv.ConfigGet[string](sourceMap, "type", "")
			switch sourceType {
			case "popularity":
				sources = append(sources, &recall.Popularity{
					Features: deps.Features,
					Limit:    int(conv.ConfigGetInt64(sourceMap, "limit", 500)),
				})
			case "embedding":
				sources = append(sources, &recall.Embedding{
					Features: deps.Features,
					Index:    deps.Index,
					Model:    conv.ConfigGet[string](sourceMap, "model", deps.Model),
					Limit:    int(conv.ConfigGetInt64(sourceMap, "limit", 500)),
					Log:      deps.Log,
				})
			default:
				return nil, fmt.Errorf("unknown source type: %s", sourceType)
			}
		}

		fanout := &recall.Fanout{
			Sources:       sources,
			Dedup:         conv.ConfigGet[bool](cfg, "dedup", true),
			MergeStrategy: conv.ConfigGet[string](cfg, "merge_strategy", ""),
		}
		if sec := conv.ConfigGetInt64(cfg, "timeout", 0); sec > 0 {
			fanout.Timeout = time.Duration(sec) * time.Second
		}
		if n := conv.ConfigGetInt64(cfg, "max_concurrent", 0); n > 0 {
			fanout.MaxConcurrent = int(n)
		}
		return fanout, nil
	})

	Register("rank.rule", func(cfg map[string]interface{}) (pipeline.Node, error) {
		return &rank.RuleRanker{
			Features:       deps.Features,
			Weights:        rank.WeightsForStrategy(conv.ConfigGet[string](cfg, "strategy", rank.StrategyDefault)),
			PositionFactor: conv.ConfigGet[float64](cfg, "position_factor", 0),
			Log:            deps.Log,
		}, nil
	})

	Register("filter.chain", func(cfg map[string]interface{}) (pipeline.Node, error) {
		stagesConfig, ok := cfg["stages"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("stages not found or invalid")
		}
		stages := make([]filter.Stage, 0, len(stagesConfig))
		for _, sc := range stagesConfig {
			stageMap, ok := sc.(map[string]interface{})
			if !ok {
				continue
			}
			stageType := conv.ConfigGet[string](stageMap, "type", "")
			switch stageType {
			case "played":
				stages = append(stages, &filter.PlayedStage{Features: deps.Features})
			case "developer_cap":
				stages = append(stages, &filter.DeveloperCapStage{
					Features: deps.Features,
					Max:      int(conv.ConfigGetInt64(stageMap, "max", 2)),
				})
			case "genre_cap":
				stages = append(stages, &filter.GenreCapStage{
					Features: deps.Features,
					Max:      int(conv.ConfigGetInt64(stageMap, "max", 3)),
				})
			case "price":
				stages = append(stages, &filter.PriceStage{Features: deps.Features})
			case "age":
				stages = append(stages, &filter.AgeStage{Features: deps.Features})
			case "blacklist":
				ids := conv.SliceAnyToString(stageMap["item_ids"])
				key := conv.ConfigGet[string](stageMap, "key", "")
				var adapter *filter.StoreAdapter
				if deps.Store != nil && key != "" {
					adapter = filter.NewStoreAdapter(deps.Store)
				}
				stages = append(stages, &filter.FilterStage{
					Filters: []filter.Filter{filter.NewBlacklistFilter(ids, adapter, key)},
				})
			case "user_block":
				var adapter *filter.StoreAdapter
				if deps.Store != nil {
					adapter = filter.NewStoreAdapter(deps.Store)
				}
				stages = append(stages, &filter.FilterStage{
					Filters: []filter.Filter{&filter.UserBlockFilter{
						Store:     adapter,
						KeyPrefix: conv.ConfigGet[string](stageMap, "key_prefix", ""),
					}},
				})
			case "rule":
				stages = append(stages, &filter.FilterStage{
					Filters: []filter.Filter{&filter.RuleFilter{Expr: conv.ConfigGet[string](stageMap, "expr", "")}},
				})
			default:
				return nil, fmt.Errorf("unknown filter stage type: %s", stageType)
			}
		}
		return &filter.Chain{Stages: stages, Log: deps.Log}, nil
	})

	Register("rerank.diversity", func(cfg map[string]interface{}) (pipeline.Node, error) {
		return &rerank.Diversity{
			Features: deps.Features,
			Strength: conv.ConfigGet[float64](cfg, "strength", 0.5),
			Window:   int(conv.ConfigGetInt64(cfg, "window", 5)),
			Log:      deps.Log,
		}, nil
	})

	Register("rerank.topn", func(cfg map[string]interface{}) (pipeline.Node, error) {
		return &rerank.TopNNode{N: int(conv.ConfigGetInt64(cfg, "n", 0))}, nil
	})
}
