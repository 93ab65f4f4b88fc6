package core

import "context"

// EmbeddingStore 是物品向量库的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 向量一旦 Ready 即视为不可变，并发读无需加锁
//   - 维度约束在写入时强制：维度不符视为存储损坏（CORRUPTION），拒绝写入并告警，
//     绝不尝试"修复"数据
//
// 检索契约：
//   - Search 只返回 Ready 状态的物品
//   - 按余弦相似度降序排序；分数相等时按物品 ID 升序，保证确定性
//   - 实现可以是精确全量扫描，也可以是近似索引（ANN），契约只要求确定性排序
//
// 实现：
//   - store.MemoryEmbeddingStore 实现此接口
//   - 向量数据库后端（Milvus、pgvector 等）也可以实现此接口
type EmbeddingStore interface {
	// Name 返回后端名称（用于日志/监控）
	Name() string

	// Dimension 返回系统统一的向量维度 D
	Dimension() int

	// UpsertItem 登记物品元数据；新物品初始状态为 Pending
	UpsertItem(ctx context.Context, item *Item) error

	// GetItem 返回物品元数据，未登记返回 NOT_FOUND
	GetItem(ctx context.Context, itemID string) (*Item, error)

	// Put 写入物品向量并置为 Ready；len(vector) != D 时返回 CORRUPTION，
	// 物品保持非 Ready 状态
	Put(ctx context.Context, itemID string, vector []float64) error

	// Get 返回物品向量，不存在返回 NOT_FOUND
	Get(ctx context.Context, itemID string) ([]float64, error)

	// MarkStale 内容被编辑后将物品标记为 Stale，等待重新生成向量
	MarkStale(ctx context.Context, itemID string) error

	// Search 最近邻检索
	Search(ctx context.Context, req *NearestRequest) (*NearestResult, error)

	// Close 关闭连接/释放资源
	Close() error
}

// NearestRequest 最近邻检索请求
type NearestRequest struct {
	// Vector 查询向量（通常是用户的 AffinityProfile）
	Vector []float64

	// TopK 返回 TopK 个最相似的结果
	TopK int

	// Filter 额外过滤条件（可选）；返回 false 的物品被排除。
	// Ready 状态约束由实现内置，不需要在 Filter 中重复。
	Filter func(item *Item) bool
}

// NearestHit 单个检索结果项
type NearestHit struct {
	// ID 物品 ID
	ID string

	// Score 余弦相似度分数
	Score float64
}

// NearestResult 检索结果
type NearestResult struct {
	// Hits 检索结果项列表（相似度降序，同分按 ID 升序）
	Hits []NearestHit
}
