package filter

import (
	"context"

	"github.com/artfolio/reco/core"
)

// CreatorBlockFilter 过滤用户拉黑创作者的物品。
// 拉黑集合来自审核协作方，由服务层预取进 RecommendContext。
type CreatorBlockFilter struct{}

func (f *CreatorBlockFilter) Name() string {
	return "filter.creator_block"
}

func (f *CreatorBlockFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	if rctx == nil || item.CreatorID == "" {
		return false, nil
	}
	return rctx.CreatorBlocked(item.CreatorID), nil
}
