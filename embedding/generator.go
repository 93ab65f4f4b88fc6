// Package embedding 负责物品向量的生成接入与生命周期推进。
//
// 向量生成本身是一个外部异步能力（内容理解/模型服务），本包只定义
// 结果通道的契约，并由 Ingestor 把结果写入向量库、推进物品状态：
//
//	Pending --(生成成功)--> Ready
//	Ready   --(内容编辑)--> Stale --(重新生成)--> Ready
//
// 维度不符的向量视为生成侧故障，拒绝写入并告警，物品保持非 Ready 状态。
package embedding

// Result 是一次向量生成的结果。
// Err 非 nil 表示生成失败，Vector 无效。
type Result struct {
	ItemID string
	Vector []float64
	Err    error
}

// Generator 是向量生成能力的抽象，实现方通常封装一个远程模型服务。
// Submit 只负责把任务排进生成队列，结果经由 Results 通道异步返回。
type Generator interface {
	// Submit 提交一个物品的向量生成任务
	Submit(itemID string) error

	// Results 返回结果通道，由 Ingestor 消费
	Results() <-chan Result
}
