package recall

import (
	"context"

	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/pipeline"
	"github.com/artfolio/reco/pkg/utils"
)

// Affinity 是基于用户兴趣向量的最近邻召回源。
//
// 以 AffinityProfile 为查询向量检索向量库，放大 OverFetchFactor 倍取候选，
// 补偿下游过滤与多样性重排丢弃的部分。向量库只返回 Ready 物品。
// Affinity 同时实现了 Source 和 Node 接口，可以直接在 Pipeline 中使用。
type Affinity struct {
	Store core.EmbeddingStore

	// OverFetchFactor 召回放大倍数；<=0 时取 3
	OverFetchFactor int
}

func (r *Affinity) Name() string        { return "recall.affinity" }
func (r *Affinity) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall。
func (r *Affinity) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

// Recall 实现 Source 接口。冷启动（无画像/全零画像）返回空，由热度兜底接管。
func (r *Affinity) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if r.Store == nil || rctx == nil || rctx.Profile.IsZero() {
		return nil, nil
	}

	factor := r.OverFetchFactor
	if factor <= 0 {
		factor = 3
	}
	limit := rctx.Limit
	if limit <= 0 {
		limit = 20
	}

	res, err := r.Store.Search(ctx, &core.NearestRequest{
		Vector: rctx.Profile.Vector,
		TopK:   limit * factor,
		Filter: exclusionFilter(rctx),
	})
	if err != nil {
		return nil, err
	}

	out := make([]*core.Item, 0, len(res.Hits))
	for _, hit := range res.Hits {
		it, err := r.Store.GetItem(ctx, hit.ID)
		if err != nil {
			// 检索与元数据读取之间物品被移除，跳过即可
			continue
		}
		it.Score = hit.Score
		it.Features["similarity"] = hit.Score
		it.PutLabel("recall_source", utils.Label{Value: "affinity", Source: "recall"})
		out = append(out, it)
	}
	return out, nil
}

// exclusionFilter 把预取的排除集合下推到检索层：已浏览/下架/拉黑的物品
// 在 TopK 截断之前就被排除，不会挤占候选名额。否则用户近期浏览的物品
// 恰好最接近其画像时，截断后的候选可能全部被下游过滤掉。
func exclusionFilter(rctx *core.RecommendContext) func(*core.Item) bool {
	return func(it *core.Item) bool {
		if it == nil {
			return false
		}
		if rctx.Seen(it.ID) || rctx.Flagged(it.ID) {
			return false
		}
		if it.CreatorID != "" && rctx.CreatorBlocked(it.CreatorID) {
			return false
		}
		return true
	}
}
