package recall

import (
	"context"
	"testing"

	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/store"
)

func newPool(t *testing.T, dim int) *store.MemoryEmbeddingStore {
	t.Helper()
	s := store.NewMemoryEmbeddingStore(dim)
	t.Cleanup(func() { s.Close() })
	return s
}

func addReady(t *testing.T, s *store.MemoryEmbeddingStore, id string, vec []float64) {
	t.Helper()
	ctx := context.Background()
	if err := s.UpsertItem(ctx, core.NewItem(id)); err != nil {
		t.Fatalf("upsert %s: %v", id, err)
	}
	if err := s.Put(ctx, id, vec); err != nil {
		t.Fatalf("put %s: %v", id, err)
	}
}

func TestAffinity_ColdStartReturnsEmpty(t *testing.T) {
	s := newPool(t, 2)
	addReady(t, s, "i1", []float64{1, 0})

	r := &Affinity{Store: s}

	tests := []struct {
		name string
		rctx *core.RecommendContext
	}{
		{name: "nil profile", rctx: &core.RecommendContext{UserID: "u1", Limit: 10}},
		{
			name: "zero vector profile",
			rctx: &core.RecommendContext{
				UserID: "u1", Limit: 10,
				Profile: core.NewAffinityProfile("u1", 2),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Recall(context.Background(), tt.rctx)
			if err != nil {
				t.Fatalf("recall: %v", err)
			}
			if len(out) != 0 {
				t.Fatalf("cold start must yield no affinity candidates, got %d", len(out))
			}
		})
	}
}

func TestAffinity_RecallSetsSimilarityAndLabel(t *testing.T) {
	s := newPool(t, 2)
	addReady(t, s, "close", []float64{1, 0})
	addReady(t, s, "far", []float64{0, 1})

	r := &Affinity{Store: s, OverFetchFactor: 2}
	rctx := &core.RecommendContext{
		UserID: "u1", Limit: 5,
		Profile: &core.AffinityProfile{UserID: "u1", Vector: []float64{1, 0}},
	}

	out, err := r.Recall(context.Background(), rctx)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("want 2 candidates, got %d", len(out))
	}
	if out[0].ID != "close" {
		t.Fatalf("most similar item must come first, got %s", out[0].ID)
	}
	if out[0].Features["similarity"] <= out[1].Features["similarity"] {
		t.Fatalf("similarity feature must be descending")
	}
	lbl, ok := out[0].Labels["recall_source"]
	if !ok || lbl.Value != "affinity" {
		t.Fatalf("want recall_source=affinity label, got %+v", out[0].Labels)
	}
}

func TestAffinity_ExclusionsDontConsumeCandidateSlots(t *testing.T) {
	s := newPool(t, 2)
	ctx := context.Background()

	// 三个排除项与画像完全同向，比唯一的可用候选更近
	addReady(t, s, "seen", []float64{1, 0})
	addReady(t, s, "flagged", []float64{1, 0})
	blocked := core.NewItem("blocked")
	blocked.CreatorID = "bad-creator"
	if err := s.UpsertItem(ctx, blocked); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Put(ctx, "blocked", []float64{1, 0}); err != nil {
		t.Fatalf("put: %v", err)
	}
	addReady(t, s, "fresh", []float64{0.8, 0.6})

	r := &Affinity{Store: s, OverFetchFactor: 3}
	rctx := &core.RecommendContext{
		UserID: "u1", Limit: 1,
		Profile:         &core.AffinityProfile{UserID: "u1", Vector: []float64{1, 0}},
		SeenItems:       map[string]struct{}{"seen": {}},
		BlockedCreators: map[string]struct{}{"bad-creator": {}},
		FlaggedItems:    map[string]struct{}{"flagged": {}},
	}

	// limit=1, factor=3：若排除发生在 TopK 截断之后，三个排除项会占满名额
	out, err := r.Recall(ctx, rctx)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(out) != 1 || out[0].ID != "fresh" {
		ids := make([]string, 0, len(out))
		for _, it := range out {
			ids = append(ids, it.ID)
		}
		t.Fatalf("excluded items must not consume candidate slots, want [fresh], got %v", ids)
	}
}

func TestHot_RecallFromZSet(t *testing.T) {
	kv := store.NewMemoryStore()
	t.Cleanup(func() { kv.Close() })
	pool := newPool(t, 2)
	ctx := context.Background()

	addReady(t, pool, "popular", []float64{1, 0})
	addReady(t, pool, "niche", []float64{0, 1})
	if err := kv.ZAdd(ctx, "hot:items", 100, "popular"); err != nil {
		t.Fatalf("zadd: %v", err)
	}
	if err := kv.ZAdd(ctx, "hot:items", 5, "niche"); err != nil {
		t.Fatalf("zadd: %v", err)
	}

	r := &Hot{Store: kv, Items: pool, Key: "hot:items"}
	out, err := r.Recall(ctx, &core.RecommendContext{UserID: "u1", Limit: 10})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("want 2 candidates, got %d", len(out))
	}
	if out[0].ID != "popular" {
		t.Fatalf("highest popularity must come first, got %s", out[0].ID)
	}
	if lbl := out[0].Labels["recall_source"]; lbl.Value != "hot" {
		t.Fatalf("want recall_source=hot label, got %+v", out[0].Labels)
	}
}

func TestHot_ExcludesNonReadyItems(t *testing.T) {
	kv := store.NewMemoryStore()
	t.Cleanup(func() { kv.Close() })
	pool := newPool(t, 2)
	ctx := context.Background()

	addReady(t, pool, "ready", []float64{1, 0})
	if err := pool.UpsertItem(ctx, core.NewItem("pending")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for _, id := range []string{"ready", "pending"} {
		if err := kv.ZAdd(ctx, "hot:items", 50, id); err != nil {
			t.Fatalf("zadd: %v", err)
		}
	}

	r := &Hot{Store: kv, Items: pool, Key: "hot:items"}
	out, err := r.Recall(ctx, &core.RecommendContext{UserID: "u1", Limit: 10})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(out) != 1 || out[0].ID != "ready" {
		t.Fatalf("non-ready items must be excluded, got %+v", out)
	}
}
