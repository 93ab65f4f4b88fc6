package filter

import (
	"context"

	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/pkg/dsl"
)

// RuleFilter 是基于 CEL 表达式的规则过滤器。
// 表达式返回 true 时物品被过滤。
//
// 示例：
//   - `item.popularity < 1.0` → 过滤掉低热度物品
//   - `label.recall_source == "hot" && item.score < 0.1` → 过滤低分热门补充
type RuleFilter struct {
	// Expr 是 CEL 过滤表达式，为空时不过滤任何物品
	Expr string
}

func (f *RuleFilter) Name() string {
	return "filter.rule"
}

func (f *RuleFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	if f.Expr == "" {
		return false, nil
	}

	ok, err := dsl.NewEval(item, rctx).Evaluate(f.Expr)
	if err != nil {
		// 表达式错误时保留物品，避免规则配置失误清空结果
		return false, err
	}
	return ok, nil
}
