// Package reco 是一个个性化推荐引擎：以内容向量相似度为主信号，
// 叠加隐式反馈（浏览时长、来源）的衰减聚合做排序。
//
// 设计要点：
// - Pipeline-first: 推荐逻辑通过 Node 串联（Recall → Filter → Rank → ReRank）
// - Labels-first: labels 全链路透传与标准化 merge，支持 explain / 观测 / 策略驱动
// - 读写分离: 读路径缓存+降级兜底，写路径同步落日志、异步聚合画像
package reco

import "github.com/artfolio/reco/pipeline"

// 轻量 facade：便于用户直接 import "reco" 使用核心抽象。
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
