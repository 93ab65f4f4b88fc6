package rerank

import (
	"context"

	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/pipeline"
	"github.com/artfolio/reco/pkg/utils"
)

// Diversity 是多样性重排 Node：按排序分数从高到低贪心选取，
// 限制同一创作者和同一类别的物品在结果中各不超过配额。
//
// 设计原则：
//   - 贪心单趟扫描，超配额的物品被跳过，后续低分物品可以补位
//   - 配额是硬约束：即使因此凑不满 N 条，也不会放宽配额
//   - 输入必须已按分数降序排列（排序节点保证）
type Diversity struct {
	// MaxPerCreator 同一创作者的最大条数，<=0 时取 3
	MaxPerCreator int

	// MaxPerCategory 同一类别的最大条数，<=0 时取 3
	MaxPerCategory int

	// N 目标条数，<=0 时不限制（只做配额约束）
	N int
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	maxCreator := n.MaxPerCreator
	if maxCreator <= 0 {
		maxCreator = 3
	}
	maxCategory := n.MaxPerCategory
	if maxCategory <= 0 {
		maxCategory = 3
	}

	creatorCount := make(map[string]int, 32)
	categoryCount := make(map[string]int, 32)
	out := make([]*core.Item, 0, len(items))

	for _, it := range items {
		if it == nil {
			continue
		}
		if n.N > 0 && len(out) >= n.N {
			break
		}

		// 无创作者/类别信息的物品不占配额
		if it.CreatorID != "" && creatorCount[it.CreatorID] >= maxCreator {
			continue
		}
		if it.Category != "" && categoryCount[it.Category] >= maxCategory {
			continue
		}

		if it.CreatorID != "" {
			creatorCount[it.CreatorID]++
		}
		if it.Category != "" {
			categoryCount[it.Category]++
		}
		it.PutLabel("rerank", utils.Label{Value: "diversity", Source: n.Name()})
		out = append(out, it)
	}

	return out, nil
}
