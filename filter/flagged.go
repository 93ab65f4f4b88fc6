package filter

import (
	"context"

	"github.com/artfolio/reco/core"
)

// FlaggedFilter 过滤平台下架/被举报标记的物品。
// 标记集合来自审核协作方，由服务层预取进 RecommendContext。
type FlaggedFilter struct{}

func (f *FlaggedFilter) Name() string {
	return "filter.flagged"
}

func (f *FlaggedFilter) ShouldFilter(
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
	return rctx.Flagged(item.ID), nil
}
