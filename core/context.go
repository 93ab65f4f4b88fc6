package core

import "github.com/artfolio/reco/pkg/utils"

// RecommendContext 承载用户/场景/请求级信息，贯穿整个 Pipeline 透传。
//
// 排除集合（SeenItems / BlockedCreators / FlaggedItems）由服务层在进入
// Pipeline 前一次性预取，过滤节点只做纯内存判定，避免每个物品一次存储往返。
type RecommendContext struct {
	UserID string
	Scene  string

	// Limit 最终返回条数 N
	Limit int

	// Profile 用户的衰减兴趣向量；冷启动时为 nil 或全零
	Profile *AffinityProfile

	// SeenItems 新鲜度窗口内用户已浏览的物品（来自交互日志）
	SeenItems map[string]struct{}

	// BlockedCreators 用户拉黑的创作者（来自审核协作方）
	BlockedCreators map[string]struct{}

	// FlaggedItems 平台下架/标记的物品（来自审核协作方）
	FlaggedItems map[string]struct{}

	// Degraded 标记本次请求走了热度兜底（依赖不可用/超时）。
	// 仅实现侧可见，用于日志与观测，不暴露给调用方。
	Degraded bool

	// Labels 是用户级标签，可驱动整个 Pipeline 行为
	Labels map[string]utils.Label

	// Params 请求级上下文参数
	Params map[string]any
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}

// Seen 判断物品是否在新鲜度窗口内被浏览过。
func (rctx *RecommendContext) Seen(itemID string) bool {
	_, ok := rctx.SeenItems[itemID]
	return ok
}

// CreatorBlocked 判断创作者是否被当前用户拉黑。
func (rctx *RecommendContext) CreatorBlocked(creatorID string) bool {
	_, ok := rctx.BlockedCreators[creatorID]
	return ok
}

// Flagged 判断物品是否被平台下架/标记。
func (rctx *RecommendContext) Flagged(itemID string) bool {
	_, ok := rctx.FlaggedItems[itemID]
	return ok
}
