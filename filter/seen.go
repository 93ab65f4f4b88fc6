package filter

import (
	"context"

	"github.com/artfolio/reco/core"
)

// SeenFilter 过滤新鲜度窗口内用户已浏览的物品。
// 窗口之外的历史物品允许再次出现在推荐中。
type SeenFilter struct{}

func (f *SeenFilter) Name() string {
	return "filter.seen"
}

func (f *SeenFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	if rctx == nil {
		return false, nil
	}
	return rctx.Seen(item.ID), nil
}
