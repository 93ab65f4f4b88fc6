package core

import (
	"time"

	"github.com/artfolio/reco/pkg/utils"
)

// EmbeddingStatus 表示物品向量的就绪状态。
// 只有 Ready 状态的物品才能进入候选池；Pending/Stale 物品在检索阶段被排除。
type EmbeddingStatus string

const (
	// StatusPending 物品刚发布，向量尚未生成
	StatusPending EmbeddingStatus = "pending"
	// StatusReady 向量已生成且维度校验通过
	StatusReady EmbeddingStatus = "ready"
	// StatusStale 内容被编辑，旧向量失效，等待重新生成
	StatusStale EmbeddingStatus = "stale"
)

// Item 是推荐链路中的统一承载结构：元信息、分数、特征、标签。
// Labels 用于解释与策略驱动；Score 用于排序决策。
//
// Item 直接携带内容平台的领域字段：创作者、类目、发布时间、
// 热度计数与向量就绪状态，供过滤、排序与多样性重排使用。
type Item struct {
	ID         string
	Score      float64
	CreatorID  string
	Category   string
	CreatedAt  time.Time
	Popularity float64
	Status     EmbeddingStatus

	Features map[string]float64
	Meta     map[string]any
	Labels   map[string]utils.Label
}

func NewItem(id string) *Item {
	return &Item{
		ID:       id,
		Score:    0,
		Status:   StatusPending,
		Features: make(map[string]float64),
		Meta:     make(map[string]any),
		Labels:   make(map[string]utils.Label),
	}
}

// Clone 返回 Item 的拷贝，Features/Meta/Labels 为独立 map。
// 检索结果进入 Pipeline 前需要 Clone，避免并发请求改写存储层中的元数据。
func (it *Item) Clone() *Item {
	cp := &Item{
		ID:         it.ID,
		Score:      it.Score,
		CreatorID:  it.CreatorID,
		Category:   it.Category,
		CreatedAt:  it.CreatedAt,
		Popularity: it.Popularity,
		Status:     it.Status,
		Features:   make(map[string]float64, len(it.Features)),
		Meta:       make(map[string]any, len(it.Meta)),
		Labels:     make(map[string]utils.Label, len(it.Labels)),
	}
	for k, v := range it.Features {
		cp.Features[k] = v
	}
	for k, v := range it.Meta {
		cp.Meta[k] = v
	}
	for k, v := range it.Labels {
		cp.Labels[k] = v
	}
	return cp
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}
