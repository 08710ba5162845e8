// Package recsys 是一个游戏个性化推荐引擎。
//
// 设计要点：
// - Pipeline-first: 推荐链路通过 Node 串联（Recall → Rank → Filter → ReRank）
// - Labels-first: labels 全链路透传与标准化 merge，支持 explain / 观测 / 策略驱动
// - 依赖显式注入: 存储、索引、日志全部通过构造参数传入，无全局单例
//
// 典型用法见 engine 包（编排器）与 examples/quickstart。
package recsys

import "github.com/gamesense/recsys/pipeline"

// 轻量 facade：便于直接 import 根包使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall      = pipeline.KindRecall
	KindFilter      = pipeline.KindFilter
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)
