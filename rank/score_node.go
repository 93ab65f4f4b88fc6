package rank

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/model"
	"github.com/artfolio/reco/pipeline"
	"github.com/artfolio/reco/pkg/utils"
)

// ScoreNode 是个性化排序 Node：先补全排序特征，再用 RankModel 打分。
//
// 特征：
//   - similarity：召回阶段写入的余弦相似度（热度召回为 0）
//   - recency：指数时效衰减 0.5^(age/halfLife)，新作品接近 1，随时间衰减
//   - popularity：批内归一化的 log1p 热度先验
//
// 行为：
//   - 写入 labels：rank_model
//   - 更新 item.Score 并按分数降序排序，同分按物品 ID 升序，保证结果可复现
type ScoreNode struct {
	Model model.RankModel

	// HalfLifeHours 时效衰减半衰期（小时），<=0 时取 72
	HalfLifeHours float64

	// Now 便于测试注入时钟，为 nil 时使用 time.Now
	Now func() time.Time
}

func (n *ScoreNode) Name() string        { return "rank.score" }
func (n *ScoreNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *ScoreNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.Model == nil || len(items) == 0 {
		return items, nil
	}

	now := time.Now()
	if n.Now != nil {
		now = n.Now()
	}
	halfLife := n.HalfLifeHours
	if halfLife <= 0 {
		halfLife = 72
	}

	// 批内最大 log1p 热度，用于归一化热度先验
	maxPop := 0.0
	for _, it := range items {
		if it == nil {
			continue
		}
		if p := math.Log1p(math.Max(it.Popularity, 0)); p > maxPop {
			maxPop = p
		}
	}

	for _, it := range items {
		if it == nil {
			continue
		}
		if it.Features == nil {
			it.Features = make(map[string]float64, 4)
		}

		it.Features["recency"] = recencyDecay(now, it.CreatedAt, halfLife)

		pop := 0.0
		if maxPop > 0 {
			pop = math.Log1p(math.Max(it.Popularity, 0)) / maxPop
		}
		it.Features["popularity"] = pop

		score, err := n.Model.Predict(it.Features)
		if err != nil {
			return nil, err
		}
		it.Score = score
		it.PutLabel("rank_model", utils.Label{Value: n.Model.Name(), Source: "rank"})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i] == nil {
			return false
		}
		if items[j] == nil {
			return true
		}
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// recencyDecay 计算指数时效衰减：0.5^(age/halfLife)。
// CreatedAt 为零值或晚于 now 时返回 1（视为全新）。
func recencyDecay(now, createdAt time.Time, halfLifeHours float64) float64 {
	if createdAt.IsZero() || !createdAt.Before(now) {
		return 1
	}
	ageHours := now.Sub(createdAt).Hours()
	return math.Pow(0.5, ageHours/halfLifeHours)
}
