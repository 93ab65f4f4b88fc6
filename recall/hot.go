package recall

import (
	"context"

	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/pipeline"
	"github.com/artfolio/reco/pkg/utils"
)

// Hot 是热度召回源：从有序集合读取热度榜单 TopN。
//
// 两个用途：
//   - 冷启动用户（无可用画像）的主召回
//   - 向量库不可用/超时后的降级兜底
//
// 榜单分数由合格浏览事件通过 ZIncrBy 累积（见 service 的摄入路径）。
// Hot 同时实现了 Source 和 Node 接口，可以直接在 Pipeline 中使用。
type Hot struct {
	Store core.KeyValueStore
	Items core.EmbeddingStore

	// Key 榜单的有序集合 key，例如 "hot:items"
	Key string

	// OverFetchFactor 召回放大倍数；<=0 时取 3
	OverFetchFactor int
}

func (r *Hot) Name() string        { return "recall.hot" }
func (r *Hot) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall。
func (r *Hot) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

// Recall 实现 Source 接口。只返回 Ready 物品；榜单为空时返回空集。
func (r *Hot) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if r.Store == nil || r.Key == "" {
		return nil, nil
	}

	factor := r.OverFetchFactor
	if factor <= 0 {
		factor = 3
	}
	limit := 20
	if rctx != nil && rctx.Limit > 0 {
		limit = rctx.Limit
	}

	members, err := r.Store.ZRange(ctx, r.Key, 0, int64(limit*factor)-1)
	if err != nil {
		return nil, err
	}

	out := make([]*core.Item, 0, len(members))
	for i, id := range members {
		it, err := r.resolve(ctx, id)
		if err != nil || it == nil {
			continue
		}
		// 位置分：榜单名次越靠前分越高，排序节点会用完整公式重打分
		it.Score = 1.0 / float64(i+1)
		it.Features["similarity"] = 0
		it.PutLabel("recall_source", utils.Label{Value: "hot", Source: "recall"})
		out = append(out, it)
	}
	return out, nil
}

func (r *Hot) resolve(ctx context.Context, itemID string) (*core.Item, error) {
	if r.Items == nil {
		return core.NewItem(itemID), nil
	}
	it, err := r.Items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.Status != core.StatusReady {
		return nil, nil
	}
	return it, nil
}
