package core

import "context"

// ModerationProvider 是审核协作方的领域接口，提供请求前需要预取的排除集合。
//
// 实现：
//   - store 后端：从 KV 存储读取 JSON 列表（filter.StoreAdapter）
//   - feast 后端：从在线特征库按实体读取（feast.ModerationProvider）
//
// 不可用时的降级策略由服务层决定：排除集合取空集并记日志，
// 推荐流程继续，宁可漏过滤也不中断请求。
type ModerationProvider interface {
	// BlockedCreators 返回用户拉黑的创作者 ID 列表
	BlockedCreators(ctx context.Context, userID string) ([]string, error)

	// FlaggedItems 返回平台下架/举报标记的物品 ID 列表
	FlaggedItems(ctx context.Context) ([]string, error)
}
