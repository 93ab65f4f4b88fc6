package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/store"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	kv := store.NewMemoryStore()
	t.Cleanup(func() { kv.Close() })
	return New(kv, core.DefaultEngineConfig(), zerolog.Nop())
}

func event(user, item string, duration float64, ts time.Time) *core.InteractionEvent {
	return &core.InteractionEvent{
		ID:              user + "-" + item + "-" + ts.Format(time.RFC3339Nano),
		UserID:          user,
		ItemID:          item,
		DurationSeconds: duration,
		Source:          core.SourceGallery,
		Timestamp:       ts,
	}
}

func TestLog_AppendValidation(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name string
		ev   *core.InteractionEvent
	}{
		{name: "below min view threshold", ev: event("u1", "i1", 0.5, now)},
		{name: "missing user", ev: event("", "i1", 10, now)},
		{name: "missing item", ev: event("u1", "", 10, now)},
		{
			name: "unknown source",
			ev: &core.InteractionEvent{
				UserID: "u1", ItemID: "i1", DurationSeconds: 10,
				Source: "push_notification", Timestamp: now,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.Append(ctx, tt.ev); !core.IsValidation(err) {
				t.Fatalf("want VALIDATION error, got %v", err)
			}
		})
	}

	// 被拒事件不进入日志
	events, err := l.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("rejected events must not be logged, got %d", len(events))
	}
}

func TestLog_AppendDedupeWindow(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	t0 := time.Now()

	res1, err := l.Append(ctx, event("u1", "i1", 10, t0))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res1.Duplicate {
		t.Fatal("first event must not be duplicate")
	}

	// 去重窗口内的重复 (user,item)：落日志但标记 Duplicate
	res2, err := l.Append(ctx, event("u1", "i1", 12, t0.Add(2*time.Second)))
	if err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	if !res2.Duplicate {
		t.Fatal("second event within dedupe window must be duplicate")
	}

	// 不同物品不受影响
	res3, err := l.Append(ctx, event("u1", "i2", 10, t0.Add(2*time.Second)))
	if err != nil {
		t.Fatalf("append other item: %v", err)
	}
	if res3.Duplicate {
		t.Fatal("different item must not be duplicate")
	}

	// 窗口过后同一物品恢复正常
	res4, err := l.Append(ctx, event("u1", "i1", 10, t0.Add(10*time.Second)))
	if err != nil {
		t.Fatalf("append after window: %v", err)
	}
	if res4.Duplicate {
		t.Fatal("event after dedupe window must not be duplicate")
	}

	// 全部 4 条都留在日志里（审计）
	events, err := l.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("all events must be retained for audit, got %d", len(events))
	}
}

func TestLog_ListByUserSorted(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	t0 := time.Now()

	for _, ev := range []*core.InteractionEvent{
		event("u1", "i3", 10, t0.Add(20*time.Second)),
		event("u1", "i1", 10, t0),
		event("u1", "i2", 10, t0.Add(10*time.Second)),
	} {
		if _, err := l.Append(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := l.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"i1", "i2", "i3"}
	for i, id := range want {
		if events[i].ItemID != id {
			t.Fatalf("want timestamp-ascending order %v, got %s at %d", want, events[i].ItemID, i)
		}
	}
}

func TestLog_ViewedWithin(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := l.Append(ctx, event("u1", "recent", 10, now.Add(-10*time.Minute))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Append(ctx, event("u1", "old", 10, now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("append: %v", err)
	}

	seen, err := l.ViewedWithin(ctx, "u1", time.Hour, now)
	if err != nil {
		t.Fatalf("viewed within: %v", err)
	}
	if _, ok := seen["recent"]; !ok {
		t.Fatal("item viewed inside window must be in seen set")
	}
	if _, ok := seen["old"]; ok {
		t.Fatal("item viewed outside window must not be in seen set")
	}
}

func TestLog_HasEvents(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	ok, err := l.HasEvents(ctx, "nobody")
	if err != nil {
		t.Fatalf("has events: %v", err)
	}
	if ok {
		t.Fatal("unknown user must have no events")
	}

	if _, err := l.Append(ctx, event("u1", "i1", 10, time.Now())); err != nil {
		t.Fatalf("append: %v", err)
	}
	ok, err = l.HasEvents(ctx, "u1")
	if err != nil {
		t.Fatalf("has events: %v", err)
	}
	if !ok {
		t.Fatal("user with events must be known")
	}
}
