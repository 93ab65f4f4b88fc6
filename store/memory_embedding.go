package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/artfolio/reco/core"
)

// MemoryEmbeddingStore 是内存实现的物品向量库。
//
// 特点：
//   - 维度 D 在构造时固定，写入时强制校验；维度不符拒绝写入（CORRUPTION），
//     物品保持非 Ready 状态
//   - 向量一旦 Ready 即不可变，读路径只持读锁
//   - 检索为精确全量扫描：余弦相似度降序，同分按物品 ID 升序，保证确定性排序
//   - 只有 Ready 物品进入检索结果；Pending/Stale 一律排除
type MemoryEmbeddingStore struct {
	mu        sync.RWMutex
	dimension int
	items     map[string]*core.Item
	vectors   map[string][]float64
}

// NewMemoryEmbeddingStore 创建固定维度的内存向量库。
func NewMemoryEmbeddingStore(dimension int) *MemoryEmbeddingStore {
	return &MemoryEmbeddingStore{
		dimension: dimension,
		items:     make(map[string]*core.Item),
		vectors:   make(map[string][]float64),
	}
}

func (m *MemoryEmbeddingStore) Name() string { return "memory_embedding" }

func (m *MemoryEmbeddingStore) Dimension() int { return m.dimension }

// UpsertItem 登记物品元数据。新物品初始为 Pending；已有向量的物品保留原状态。
func (m *MemoryEmbeddingStore) UpsertItem(ctx context.Context, item *core.Item) error {
	if item == nil || item.ID == "" {
		return core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeValidation, "item id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := item.Clone()
	if old, ok := m.items[item.ID]; ok {
		cp.Status = old.Status
	} else if cp.Status == "" || cp.Status == core.StatusReady {
		// 状态由向量写入驱动，登记时不允许直接声明 Ready
		cp.Status = core.StatusPending
	}
	m.items[item.ID] = cp
	return nil
}

func (m *MemoryEmbeddingStore) GetItem(ctx context.Context, itemID string) (*core.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[itemID]
	if !ok {
		return nil, core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeNotFound, "item not found: "+itemID)
	}
	return it.Clone(), nil
}

// Put 写入物品向量并置为 Ready。
// len(vector) != D 时返回 CORRUPTION，向量不落库，物品保持非 Ready 状态。
func (m *MemoryEmbeddingStore) Put(ctx context.Context, itemID string, vector []float64) error {
	if len(vector) != m.dimension {
		return core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeCorruption, "vector dimension mismatch")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemID]
	if !ok {
		return core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeNotFound, "item not found: "+itemID)
	}

	vec := make([]float64, len(vector))
	copy(vec, vector)
	m.vectors[itemID] = vec
	it.Status = core.StatusReady
	return nil
}

func (m *MemoryEmbeddingStore) Get(ctx context.Context, itemID string) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vec, ok := m.vectors[itemID]
	if !ok {
		return nil, core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeNotFound, "vector not found: "+itemID)
	}
	out := make([]float64, len(vec))
	copy(out, vec)
	return out, nil
}

// MarkStale 内容被编辑后标记为 Stale；物品暂时退出候选池，等待重新生成向量。
func (m *MemoryEmbeddingStore) MarkStale(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemID]
	if !ok {
		return core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeNotFound, "item not found: "+itemID)
	}
	it.Status = core.StatusStale
	return nil
}

// Search 精确最近邻检索：只扫描 Ready 物品，按余弦相似度降序，同分按 ID 升序。
func (m *MemoryEmbeddingStore) Search(ctx context.Context, req *core.NearestRequest) (*core.NearestResult, error) {
	if req == nil {
		return nil, core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeValidation, "search request is nil")
	}
	if len(req.Vector) != m.dimension {
		return nil, core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeValidation, "query vector dimension mismatch")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]core.NearestHit, 0, len(m.vectors))
	for itemID, vec := range m.vectors {
		it, ok := m.items[itemID]
		if !ok || it.Status != core.StatusReady {
			continue
		}
		if req.Filter != nil && !req.Filter(it) {
			continue
		}
		hits = append(hits, core.NearestHit{
			ID:    itemID,
			Score: CosineSimilarity(req.Vector, vec),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}

	return &core.NearestResult{Hits: hits}, nil
}

func (m *MemoryEmbeddingStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*core.Item)
	m.vectors = make(map[string][]float64)
	return nil
}

// CosineSimilarity 计算余弦相似度。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// 确保实现了接口
var _ core.EmbeddingStore = (*MemoryEmbeddingStore)(nil)
