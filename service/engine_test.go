package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artfolio/reco/aggregate"
	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/eventlog"
	"github.com/artfolio/reco/filter"
	"github.com/artfolio/reco/pipeline"
	"github.com/artfolio/reco/store"
)

type testEnv struct {
	engine     *Engine
	kv         *store.MemoryStore
	embeddings *store.MemoryEmbeddingStore
	profiles   *aggregate.StoreAdapter
	cfg        *core.EngineConfig
}

func newTestEnv(t *testing.T, mutate func(cfg *core.EngineConfig)) *testEnv {
	t.Helper()

	cfg := core.DefaultEngineConfig()
	cfg.Dimension = 2
	if mutate != nil {
		mutate(cfg)
	}

	kv := store.NewMemoryStore()
	t.Cleanup(func() { kv.Close() })
	embeddings := store.NewMemoryEmbeddingStore(cfg.Dimension)
	t.Cleanup(func() { embeddings.Close() })

	logger := zerolog.Nop()
	log := eventlog.New(kv, cfg, logger)
	profiles := aggregate.NewStoreAdapter(kv)
	agg := aggregate.New(profiles, embeddings, cfg, logger)

	engine := New(kv, embeddings, log, agg, NewStoreModeration(kv), cfg, logger)
	t.Cleanup(engine.Close)
	return &testEnv{engine: engine, kv: kv, embeddings: embeddings, profiles: profiles, cfg: cfg}
}

func (env *testEnv) addReadyItem(t *testing.T, id, creator, category string, vec []float64, popularity float64) {
	t.Helper()
	ctx := context.Background()

	it := core.NewItem(id)
	it.CreatorID = creator
	it.Category = category
	it.CreatedAt = time.Now().Add(-time.Hour)
	it.Popularity = popularity
	require.NoError(t, env.embeddings.UpsertItem(ctx, it))
	require.NoError(t, env.embeddings.Put(ctx, id, vec))
	require.NoError(t, env.kv.ZAdd(ctx, env.cfg.HotKey, popularity, id))
}

func (env *testEnv) ingestView(t *testing.T, user, item string, duration float64, ts time.Time) {
	t.Helper()
	_, err := env.engine.Ingest(context.Background(), &core.InteractionEvent{
		UserID:          user,
		ItemID:          item,
		DurationSeconds: duration,
		Source:          core.SourceGallery,
		Timestamp:       ts,
	})
	require.NoError(t, err)
}

func TestEngine_UnknownUserNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.GetForYou(context.Background(), "ghost", 10)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestEngine_EmptyUserIDValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.GetForYou(context.Background(), "", 10)
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}

func TestEngine_ColdStartPopularityFallback(t *testing.T) {
	env := newTestEnv(t, func(cfg *core.EngineConfig) { cfg.CacheTTLSeconds = 0 })
	env.addReadyItem(t, "pop-1", "c1", "art", []float64{1, 0}, 100)
	env.addReadyItem(t, "pop-2", "c2", "photo", []float64{0, 1}, 50)

	// 浏览一个没有向量的物品：用户已知，但画像仍为零（冷启动）
	require.NoError(t, env.embeddings.UpsertItem(context.Background(), core.NewItem("no-vector")))
	env.ingestView(t, "newbie", "no-vector", 10, time.Now())
	env.engine.Flush()

	resp, err := env.engine.GetForYou(context.Background(), "newbie", 10)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items, "cold-start user must get popularity fallback when pool is non-empty")
	assert.Equal(t, "pop-1", resp.Items[0].ItemID, "highest popularity first")
}

func TestEngine_CacheStableWithinTTLAndInvalidatedByEvent(t *testing.T) {
	env := newTestEnv(t, func(cfg *core.EngineConfig) {
		cfg.FreshnessWindowSeconds = 1 // 避免已浏览过滤干扰本测试
	})
	env.addReadyItem(t, "a", "c1", "art", []float64{1, 0}, 10)
	env.addReadyItem(t, "b", "c2", "art", []float64{0.9, 0.1}, 10)

	t0 := time.Now().Add(-time.Minute)
	env.ingestView(t, "u1", "a", 30, t0)
	env.engine.Flush()

	first, err := env.engine.GetForYou(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, first.Items)

	// TTL 内：加入更优物品也不影响缓存结果
	env.addReadyItem(t, "c", "c3", "art", []float64{1, 0}, 999)
	second, err := env.engine.GetForYou(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, first.Items, second.Items, "requests within TTL must return the identical list")

	// 新交互事件立即失效缓存
	env.ingestView(t, "u1", "b", 20, t0.Add(30*time.Second))
	env.engine.Flush()

	third, err := env.engine.GetForYou(context.Background(), "u1", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(third.Items))
	for _, it := range third.Items {
		ids = append(ids, it.ItemID)
	}
	assert.Contains(t, ids, "c", "after invalidation the fresh pool must be visible")
}

func TestEngine_FreshnessWindowExcludesViewedItems(t *testing.T) {
	env := newTestEnv(t, func(cfg *core.EngineConfig) {
		cfg.CacheTTLSeconds = 0
		cfg.FreshnessWindowSeconds = 3600
	})
	env.addReadyItem(t, "x", "c1", "art", []float64{1, 0}, 10)
	env.addReadyItem(t, "y", "c2", "art", []float64{0.9, 0.1}, 10)

	t0 := time.Now()
	env.ingestView(t, "u1", "x", 30, t0)
	env.engine.Flush()

	// 窗口内：刚看过的 x 被排除
	env.engine.Now = func() time.Time { return t0.Add(time.Minute) }
	resp, err := env.engine.GetForYou(context.Background(), "u1", 10)
	require.NoError(t, err)
	for _, it := range resp.Items {
		assert.NotEqual(t, "x", it.ItemID, "item viewed inside freshness window must be excluded")
	}

	// 窗口外：x 可以再次出现
	env.engine.Now = func() time.Time { return t0.Add(2 * time.Hour) }
	resp, err = env.engine.GetForYou(context.Background(), "u1", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		ids = append(ids, it.ItemID)
	}
	assert.Contains(t, ids, "x", "item may reappear after the freshness window")
}

// brokenSearchStore 包装真实向量库，但 Search 始终失败，模拟向量库不可用。
type brokenSearchStore struct {
	core.EmbeddingStore
}

func (b *brokenSearchStore) Search(ctx context.Context, req *core.NearestRequest) (*core.NearestResult, error) {
	return nil, core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeUnavailable, "vector index down")
}

func TestEngine_DegradedFallbackOnEmbeddingFailure(t *testing.T) {
	env := newTestEnv(t, func(cfg *core.EngineConfig) { cfg.CacheTTLSeconds = 0 })
	env.addReadyItem(t, "pop-1", "c1", "art", []float64{1, 0}, 100)

	// 预置非零画像，使请求走个性化路径
	require.NoError(t, env.profiles.SaveProfile(context.Background(), &core.AffinityProfile{
		UserID: "u1", Vector: []float64{1, 0}, EventCount: 3, UpdatedAt: time.Now(),
	}))

	env.engine.embeddings = &brokenSearchStore{EmbeddingStore: env.embeddings}

	resp, err := env.engine.GetForYou(context.Background(), "u1", 10)
	require.NoError(t, err, "embedding failure must degrade, not fail the request")
	assert.NotEmpty(t, resp.Items, "degraded request must serve the popularity pool")
}

// brokenZSetStore 包装真实 KV，但 ZRange 始终失败，模拟热度池不可用。
type brokenZSetStore struct {
	core.KeyValueStore
}

func (b *brokenZSetStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "zset backend down")
}

func TestEngine_UnavailableWhenBothPoolsDown(t *testing.T) {
	env := newTestEnv(t, func(cfg *core.EngineConfig) { cfg.CacheTTLSeconds = 0 })
	env.addReadyItem(t, "pop-1", "c1", "art", []float64{1, 0}, 100)

	require.NoError(t, env.profiles.SaveProfile(context.Background(), &core.AffinityProfile{
		UserID: "u1", Vector: []float64{1, 0}, EventCount: 3, UpdatedAt: time.Now(),
	}))

	env.engine.embeddings = &brokenSearchStore{EmbeddingStore: env.embeddings}
	env.engine.kv = &brokenZSetStore{KeyValueStore: env.kv}

	_, err := env.engine.GetForYou(context.Background(), "u1", 10)
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err), "both pools down must surface UNAVAILABLE")
}

func TestEngine_DedupeWindowSingleAffinityUpdate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addReadyItem(t, "i1", "c1", "art", []float64{1, 0}, 10)

	t0 := time.Now()
	env.ingestView(t, "u1", "i1", 30, t0)
	env.ingestView(t, "u1", "i1", 30, t0.Add(2*time.Second)) // 去重窗口内的重复
	env.engine.Flush()

	p, err := env.profiles.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.EventCount, "duplicate within dedupe window must yield exactly one update")
}

func TestEngine_EndToEndCategoryPreference(t *testing.T) {
	env := newTestEnv(t, func(cfg *core.EngineConfig) { cfg.CacheTTLSeconds = 0 })

	// 同等热度：3 个抽象类 + 3 个人像类，向量正交
	for i := 0; i < 3; i++ {
		env.addReadyItem(t, fmt.Sprintf("abstract-%d", i), fmt.Sprintf("ca-%d", i), "abstract", []float64{1, 0}, 10)
		env.addReadyItem(t, fmt.Sprintf("portrait-%d", i), fmt.Sprintf("cp-%d", i), "portrait", []float64{0, 1}, 10)
	}

	// 3 次合格浏览全部落在 abstract 类（平均 30s）
	t0 := time.Now().Add(-10 * time.Minute)
	for i := 0; i < 3; i++ {
		env.ingestView(t, "u1", fmt.Sprintf("abstract-%d", i), 30, t0.Add(time.Duration(i)*time.Minute))
	}
	env.engine.Flush()

	// 避免新鲜度窗口排除刚浏览的物品影响断言，只看类别间相对次序
	env.engine.Now = func() time.Time { return t0.Add(2 * time.Hour) }

	resp, err := env.engine.GetForYou(context.Background(), "u1", 6)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)

	seenPortrait := false
	for _, it := range resp.Items {
		isPortrait := len(it.ItemID) >= 8 && it.ItemID[:8] == "portrait"
		if isPortrait {
			seenPortrait = true
		} else if seenPortrait {
			t.Fatalf("abstract item %s ranked below a portrait item: %+v", it.ItemID, resp.Items)
		}
	}
}

func TestEngine_SeenDominatedNeighborhoodStillServes(t *testing.T) {
	env := newTestEnv(t, func(cfg *core.EngineConfig) { cfg.CacheTTLSeconds = 0 })

	// 刚浏览过的三个物品与画像完全同向，唯一未看过的物品稍远
	env.addReadyItem(t, "seen-0", "c1", "art", []float64{1, 0}, 10)
	env.addReadyItem(t, "seen-1", "c2", "art", []float64{1, 0}, 10)
	env.addReadyItem(t, "seen-2", "c3", "art", []float64{1, 0}, 10)
	env.addReadyItem(t, "fresh", "c4", "art", []float64{0.8, 0.6}, 10)

	t0 := time.Now().Add(-3 * time.Minute)
	for i, id := range []string{"seen-0", "seen-1", "seen-2"} {
		env.ingestView(t, "u1", id, 30, t0.Add(time.Duration(i)*time.Second))
	}
	env.engine.Flush()

	// limit=1、放大 3 倍：最近邻前三名全是窗口内看过的物品，
	// 仍然必须返回未看过的候选，而不是空列表
	resp, err := env.engine.GetForYou(context.Background(), "u1", 1)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1, "valid unseen candidate must survive seen-dominated neighborhood")
	assert.Equal(t, "fresh", resp.Items[0].ItemID)
}

// truncatedSearchStore 只返回最近的一个命中，模拟召回不全的近似索引。
type truncatedSearchStore struct {
	core.EmbeddingStore
}

func (s *truncatedSearchStore) Search(ctx context.Context, req *core.NearestRequest) (*core.NearestResult, error) {
	res, err := s.EmbeddingStore.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(res.Hits) > 1 {
		res.Hits = res.Hits[:1]
	}
	return res, nil
}

func TestEngine_HotBackfillForShortPersonalizedList(t *testing.T) {
	env := newTestEnv(t, func(cfg *core.EngineConfig) { cfg.CacheTTLSeconds = 0 })
	env.addReadyItem(t, "best", "c1", "art", []float64{1, 0}, 5)
	env.addReadyItem(t, "mid", "c2", "photo", []float64{0.8, 0.6}, 50)
	env.addReadyItem(t, "other", "c3", "craft", []float64{0.6, 0.8}, 100)

	require.NoError(t, env.profiles.SaveProfile(context.Background(), &core.AffinityProfile{
		UserID: "u1", Vector: []float64{1, 0}, EventCount: 3, UpdatedAt: time.Now(),
	}))

	env.engine.embeddings = &truncatedSearchStore{EmbeddingStore: env.embeddings}

	resp, err := env.engine.GetForYou(context.Background(), "u1", 3)
	require.NoError(t, err)
	require.Len(t, resp.Items, 3, "short personalized list must be backfilled from the popularity pool")

	ids := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		ids = append(ids, it.ItemID)
	}
	assert.Contains(t, ids, "best")
	assert.Contains(t, ids, "mid")
	assert.Contains(t, ids, "other")
}

func TestEngine_ConfiguredRankStage(t *testing.T) {
	env := newTestEnv(t, func(cfg *core.EngineConfig) { cfg.CacheTTLSeconds = 0 })
	env.addReadyItem(t, "big", "c1", "art", []float64{1, 0}, 500)
	env.addReadyItem(t, "small", "c2", "art", []float64{0.9, 0.1}, 5)

	require.NoError(t, env.profiles.SaveProfile(context.Background(), &core.AffinityProfile{
		UserID: "u1", Vector: []float64{1, 0}, EventCount: 3, UpdatedAt: time.Now(),
	}))

	// 配置驱动的排序阶段：压掉高热度物品
	env.engine.SetRankStage(&pipeline.Pipeline{Nodes: []pipeline.Node{
		&filter.FilterNode{Filters: []filter.Filter{
			&filter.RuleFilter{Expr: `item.popularity >= 100.0`},
		}},
	}})

	resp, err := env.engine.GetForYou(context.Background(), "u1", 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		ids = append(ids, it.ItemID)
	}
	assert.Contains(t, ids, "small")
	assert.NotContains(t, ids, "big", "configured rank stage must replace the built-in nodes")
}

func TestEngine_ConcurrentIngestsSameUserAllApplied(t *testing.T) {
	env := newTestEnv(t, nil)

	const events = 20
	for i := 0; i < events; i++ {
		env.addReadyItem(t, fmt.Sprintf("i%02d", i), "c1", "art", []float64{1, 0}, 10)
	}

	// 时间戳留空，由追加路径在用户锁内按摄入顺序打点
	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.engine.Ingest(context.Background(), &core.InteractionEvent{
				UserID:          "u1",
				ItemID:          fmt.Sprintf("i%02d", i),
				DurationSeconds: 30,
				Source:          core.SourceGallery,
			})
			if err != nil {
				t.Errorf("ingest %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	env.engine.Flush()

	p, err := env.profiles.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(events), p.EventCount, "concurrent same-user ingests must all fold into the profile")
}

func TestEngine_ConcurrentRequestsSingleflight(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addReadyItem(t, "a", "c1", "art", []float64{1, 0}, 10)

	t0 := time.Now().Add(-time.Minute)
	env.ingestView(t, "u1", "a", 30, t0)
	env.engine.Flush()

	const callers = 16
	results := make(chan *RecommendResponse, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			resp, err := env.engine.GetForYou(context.Background(), "u1", 10)
			if err != nil {
				errs <- err
				return
			}
			results <- resp
		}()
	}

	var first *RecommendResponse
	for i := 0; i < callers; i++ {
		select {
		case err := <-errs:
			t.Fatalf("concurrent request failed: %v", err)
		case resp := <-results:
			if first == nil {
				first = resp
			} else {
				assert.Equal(t, first.Items, resp.Items, "concurrent identical requests must agree")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for concurrent requests")
		}
	}
}
