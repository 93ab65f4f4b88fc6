// Package service 实现推荐服务的编排层：检索 → 过滤 → 排序 → 重排，
// 外加缓存、请求合并、降级兜底与交互事件的摄入边界。
package service

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/artfolio/reco/aggregate"
	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/eventlog"
	"github.com/artfolio/reco/filter"
	"github.com/artfolio/reco/model"
	"github.com/artfolio/reco/pipeline"
	"github.com/artfolio/reco/pkg/shardlock"
	"github.com/artfolio/reco/rank"
	"github.com/artfolio/reco/recall"
	"github.com/artfolio/reco/rerank"
)

// applyQueueDepth 是单个应用队列的缓冲长度；
// 队列满时 Ingest 在同分片上产生背压，而不是无界堆积。
const applyQueueDepth = 128

// RecommendedItem 是响应中的单个条目。
type RecommendedItem struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// RecommendResponse 是一次推荐请求的结果。
// 降级信息只进日志，不在响应体中暴露给调用方。
type RecommendResponse struct {
	UserID string            `json:"user_id"`
	Items  []RecommendedItem `json:"items"`
}

// Engine 是推荐服务的编排核心。
//
// 读路径：缓存 → singleflight 合并 → 个性化流水线，向量库不可用/超时
// 降级到热度兜底；只有兜底也失败才返回 UNAVAILABLE。
//
// 写路径：校验 → 落日志（同步应答）→ 画像聚合与热度累积（异步完成），
// 配合服务端去重保证重试下的至少一次语义。同一用户的事件按摄入顺序
// 经分片 FIFO 队列应用，并发上报不会因调度差异被聚合器当作乱序丢弃。
type Engine struct {
	cfg        *core.EngineConfig
	kv         core.KeyValueStore
	embeddings core.EmbeddingStore
	log        *eventlog.Log
	agg        *aggregate.Aggregator
	moderation core.ModerationProvider
	ranker     model.RankModel

	// rankStage 非空时替换内置的排序与多样性节点（见 SetRankStage）
	rankStage *pipeline.Pipeline

	cache       *ResultCache
	sf          singleflight.Group
	locks       *shardlock.ShardedMutex
	applyQueues []chan *core.InteractionEvent
	wg          sync.WaitGroup
	closeOnce   sync.Once
	logger      zerolog.Logger

	// Now 便于测试注入时钟，为 nil 时使用 time.Now
	Now func() time.Time
}

// New 创建推荐引擎。moderation 可为 nil（无审核协作方时排除集合为空）。
func New(
	kv core.KeyValueStore,
	embeddings core.EmbeddingStore,
	log *eventlog.Log,
	agg *aggregate.Aggregator,
	moderation core.ModerationProvider,
	cfg *core.EngineConfig,
	logger zerolog.Logger,
) *Engine {
	e := &Engine{
		cfg:        cfg,
		kv:         kv,
		embeddings: embeddings,
		log:        log,
		agg:        agg,
		moderation: moderation,
		ranker: &model.LinearModel{
			Weights: map[string]float64{
				"similarity": cfg.WeightSimilarity,
				"recency":    cfg.WeightRecency,
				"popularity": cfg.WeightPopularity,
			},
		},
		cache:  NewResultCache(cfg.CacheTTL()),
		locks:  shardlock.New(cfg.ProfileShards),
		logger: logger.With().Str("component", "service.engine").Logger(),
	}

	// 按用户分片的应用队列：每个分片一个 worker 顺序消费，
	// 同一用户的事件严格按入队顺序更新画像与热度
	shards := cfg.ProfileShards
	if shards <= 0 {
		shards = 64
	}
	e.applyQueues = make([]chan *core.InteractionEvent, shards)
	for i := range e.applyQueues {
		ch := make(chan *core.InteractionEvent, applyQueueDepth)
		e.applyQueues[i] = ch
		go e.applyWorker(ch)
	}
	return e
}

// SetRankStage 用配置驱动的节点链替换内置的排序与多样性阶段，
// 按请求 limit 的 TopN 截断仍由引擎追加。节点链一般由
// pipeline.Config.BuildPipeline 从 YAML 构建，见 config/builders。
func (e *Engine) SetRankStage(p *pipeline.Pipeline) {
	e.rankStage = p
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// GetForYou 返回用户的个性化推荐列表。
//
// 语义：
//   - TTL 内重复请求返回同一列表；新交互事件会立即失效缓存
//   - 未知用户（无画像且无事件）返回 NOT_FOUND
//   - 冷启动用户走热度兜底（不算降级）
//   - 向量库不可用/超时降级热度兜底并记 Degraded 日志；
//     兜底也失败才返回 UNAVAILABLE
func (e *Engine) GetForYou(ctx context.Context, userID string, limit int) (*RecommendResponse, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeValidation, "user id is required")
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	key := userID + ":" + strconv.Itoa(limit)
	if resp, ok := e.cache.Get(key); ok {
		return resp, nil
	}

	// 合并同一 key 的并发请求，只有一个真正执行
	v, err, _ := e.sf.Do(key, func() (interface{}, error) {
		resp, err := e.recommend(ctx, userID, limit)
		if err != nil {
			return nil, err
		}
		e.cache.Set(key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RecommendResponse), nil
}

func (e *Engine) recommend(ctx context.Context, userID string, limit int) (*RecommendResponse, error) {
	now := e.now()

	profile, err := e.agg.GetProfile(ctx, userID)
	if err != nil && !core.IsNotFound(err) {
		return nil, err
	}
	if profile == nil {
		known, err := e.log.HasEvents(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeNotFound, "unknown user: "+userID)
		}
	}

	rctx := &core.RecommendContext{
		UserID:  userID,
		Scene:   "foryou",
		Limit:   limit,
		Profile: profile,
	}
	e.prefetchExclusions(ctx, rctx, now)

	var items []*core.Item
	if profile.IsZero() {
		// 冷启动：无可用画像，直接走热度池
		items, err = e.fallbackPipeline(limit).Run(ctx, rctx, nil)
		if err != nil {
			return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeUnavailable,
				"popularity pool unavailable for cold-start user")
		}
	} else {
		items, err = e.personalized(ctx, rctx, limit)
		if err != nil {
			return nil, err
		}
	}

	resp := &RecommendResponse{UserID: userID, Items: make([]RecommendedItem, 0, len(items))}
	for _, it := range items {
		if it == nil {
			continue
		}
		resp.Items = append(resp.Items, RecommendedItem{ItemID: it.ID, Score: it.Score})
	}

	e.logger.Info().
		Str("user_id", userID).
		Int("count", len(resp.Items)).
		Bool("degraded", rctx.Degraded).
		Msg("recommendation served")
	return resp, nil
}

// personalized 执行个性化流水线；向量检索携带有界超时，
// 失败或超时降级到热度兜底。
func (e *Engine) personalized(ctx context.Context, rctx *core.RecommendContext, limit int) ([]*core.Item, error) {
	rtx, cancel := context.WithTimeout(ctx, e.cfg.RetrieveTimeout())
	defer cancel()

	items, err := e.personalizedPipeline(limit).Run(rtx, rctx, nil)
	if err == nil {
		if len(items) < limit {
			items = e.backfill(rtx, rctx, limit, items)
		}
		return items, nil
	}

	e.logger.Warn().
		Str("user_id", rctx.UserID).
		Err(err).
		Msg("personalized path failed, degrading to popularity fallback")
	rctx.Degraded = true

	items, ferr := e.fallbackPipeline(limit).Run(ctx, rctx, nil)
	if ferr != nil {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeUnavailable,
			"both personalized and popularity pools unavailable")
	}
	return items, nil
}

// prefetchExclusions 一次性预取排除集合，失败时取空集并继续，
// 宁可漏过滤也不中断请求。
func (e *Engine) prefetchExclusions(ctx context.Context, rctx *core.RecommendContext, now time.Time) {
	seen, err := e.log.ViewedWithin(ctx, rctx.UserID, e.cfg.FreshnessWindow(), now)
	if err != nil {
		e.logger.Warn().Str("user_id", rctx.UserID).Err(err).Msg("seen set unavailable")
		seen = map[string]struct{}{}
	}
	rctx.SeenItems = seen

	rctx.BlockedCreators = map[string]struct{}{}
	rctx.FlaggedItems = map[string]struct{}{}
	if e.moderation == nil {
		return
	}

	if blocked, err := e.moderation.BlockedCreators(ctx, rctx.UserID); err != nil {
		e.logger.Warn().Str("user_id", rctx.UserID).Err(err).Msg("blocked creators unavailable")
	} else {
		for _, id := range blocked {
			rctx.BlockedCreators[id] = struct{}{}
		}
	}

	if flagged, err := e.moderation.FlaggedItems(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("flagged items unavailable")
	} else {
		for _, id := range flagged {
			rctx.FlaggedItems[id] = struct{}{}
		}
	}
}

func (e *Engine) filterNode() *filter.FilterNode {
	return &filter.FilterNode{Filters: []filter.Filter{
		&filter.FlaggedFilter{},
		&filter.CreatorBlockFilter{},
		&filter.SeenFilter{},
	}}
}

func (e *Engine) rankNodes(limit int) []pipeline.Node {
	if e.rankStage != nil {
		nodes := make([]pipeline.Node, 0, len(e.rankStage.Nodes)+1)
		nodes = append(nodes, e.rankStage.Nodes...)
		return append(nodes, &rerank.TopNNode{N: limit})
	}
	return []pipeline.Node{
		&rank.ScoreNode{
			Model:         e.ranker,
			HalfLifeHours: e.cfg.RecencyHalfLifeHours,
			Now:           e.now,
		},
		&rerank.Diversity{
			MaxPerCreator:  e.cfg.MaxPerCreator,
			MaxPerCategory: e.cfg.MaxPerCategory,
			N:              limit,
		},
		&rerank.TopNNode{N: limit},
	}
}

func (e *Engine) affinitySource() *recall.Affinity {
	return &recall.Affinity{Store: e.embeddings, OverFetchFactor: e.cfg.OverFetchFactor}
}

func (e *Engine) hotSource() *recall.Hot {
	return &recall.Hot{
		Store:           e.kv,
		Items:           e.embeddings,
		Key:             e.cfg.HotKey,
		OverFetchFactor: e.cfg.OverFetchFactor,
	}
}

func (e *Engine) personalizedPipeline(limit int) *pipeline.Pipeline {
	nodes := []pipeline.Node{
		e.affinitySource(),
		e.filterNode(),
	}
	return &pipeline.Pipeline{Nodes: append(nodes, e.rankNodes(limit)...)}
}

func (e *Engine) fallbackPipeline(limit int) *pipeline.Pipeline {
	nodes := []pipeline.Node{
		e.hotSource(),
		e.filterNode(),
	}
	return &pipeline.Pipeline{Nodes: append(nodes, e.rankNodes(limit)...)}
}

// mergedPipeline 并发跑兴趣与热度双路召回后去重合并，用于补足短列表。
func (e *Engine) mergedPipeline(limit int) *pipeline.Pipeline {
	nodes := []pipeline.Node{
		&recall.Fanout{
			Sources: []recall.Source{e.affinitySource(), e.hotSource()},
			Dedup:   true,
		},
		e.filterNode(),
	}
	return &pipeline.Pipeline{Nodes: append(nodes, e.rankNodes(limit)...)}
}

// backfill 在个性化结果不足 limit 条时用双路召回重跑一次补足。
// 精确全量检索下通常与原结果一致；向量库换成近似索引后，
// 召回不全的部分由热度池兜住条数。补足失败保留原列表。
func (e *Engine) backfill(ctx context.Context, rctx *core.RecommendContext, limit int, items []*core.Item) []*core.Item {
	merged, err := e.mergedPipeline(limit).Run(ctx, rctx, nil)
	if err != nil || len(merged) <= len(items) {
		return items
	}
	return merged
}

// Ingest 摄入一个交互事件。
//
// 同步部分：校验 + 落日志 + 入队 + 缓存失效，返回即表示事件已持久化。
// 异步部分：画像聚合与热度累积，由分片 worker 按入队顺序完成（见 Flush）。
// 落日志与入队在同一把用户锁内执行，应用顺序与日志顺序一致。
// 去重窗口内的重复事件只落日志，不触发第二次画像更新。
func (e *Engine) Ingest(ctx context.Context, ev *core.InteractionEvent) (*eventlog.AppendResult, error) {
	if ev == nil {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeValidation, "event is required")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	e.locks.Lock(ev.UserID)
	res, err := e.log.Append(ctx, ev)
	if err == nil && !res.Duplicate {
		e.enqueueApply(res.Event)
	}
	e.locks.Unlock(ev.UserID)
	if err != nil {
		return nil, err
	}

	e.cache.InvalidateUser(ev.UserID)
	return res, nil
}

func (e *Engine) enqueueApply(ev *core.InteractionEvent) {
	e.wg.Add(1)
	e.applyQueues[queueIndex(ev.UserID, len(e.applyQueues))] <- ev
}

func queueIndex(userID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(n))
}

func (e *Engine) applyWorker(ch <-chan *core.InteractionEvent) {
	for ev := range ch {
		e.apply(ev)
		e.wg.Done()
	}
}

func (e *Engine) apply(ev *core.InteractionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.agg.Apply(ctx, ev); err != nil {
		e.logger.Error().
			Str("user_id", ev.UserID).
			Str("item_id", ev.ItemID).
			Err(err).
			Msg("affinity update failed")
	}

	if _, err := e.kv.ZIncrBy(ctx, e.cfg.HotKey, 1, ev.ItemID); err != nil {
		e.logger.Warn().Str("item_id", ev.ItemID).Err(err).Msg("popularity increment failed")
	}
}

// Flush 等待队列中的事件全部应用完成（测试与优雅停机使用）。
func (e *Engine) Flush() {
	e.wg.Wait()
}

// Close 排空应用队列并停止 worker。Close 之后不应再调用 Ingest。
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.wg.Wait()
		for _, ch := range e.applyQueues {
			close(ch)
		}
	})
}

// RebuildProfile 从交互日志从头重放用户画像（恢复路径）。
func (e *Engine) RebuildProfile(ctx context.Context, userID string) (*core.AffinityProfile, error) {
	events, err := e.log.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := e.agg.Rebuild(ctx, userID, events)
	if err != nil {
		return nil, err
	}
	e.cache.InvalidateUser(userID)
	return p, nil
}
