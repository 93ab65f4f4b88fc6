// Package eventlog 实现交互日志：追加写入、入口校验、服务端去重。
//
// 日志是画像的事实源：事件一旦追加永不修改，画像可由事件序列完整重放。
// 客户端约定每次浏览会话只上报一次，但组件重挂载等原因仍会产生重复上报，
// 因此服务端必须兜底去重：去重窗口内的重复事件照常落日志（审计），
// 但标记为 Duplicate，不触发第二次画像更新。
package eventlog

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/pkg/shardlock"
)

const (
	logKeyPrefix    = "log:user:"
	dedupeKeyPrefix = "dedupe:"

	// 单用户日志超过上限后截断最旧事件（归档窗口之外的事件不再参与重放）
	maxEventsPerUser  = 2048
	trimEventsPerUser = 1024
)

// AppendResult 是一次追加的结果。
type AppendResult struct {
	Event *core.InteractionEvent

	// Duplicate 表示事件落在同一 (user,item) 的去重窗口内：
	// 已写入日志供审计，但不应触发画像更新
	Duplicate bool
}

// Log 是 KeyValueStore 之上的按用户追加日志。
type Log struct {
	store  core.KeyValueStore
	cfg    *core.EngineConfig
	locks  *shardlock.ShardedMutex
	logger zerolog.Logger
}

func New(kv core.KeyValueStore, cfg *core.EngineConfig, logger zerolog.Logger) *Log {
	return &Log{
		store:  kv,
		cfg:    cfg,
		locks:  shardlock.New(cfg.ProfileShards),
		logger: logger.With().Str("component", "eventlog").Logger(),
	}
}

// Append 校验并追加一个交互事件。
//
// - 低于最小浏览时长或字段缺失：返回 VALIDATION 错误，事件不进入日志
// - 去重窗口内的重复 (user,item)：照常追加（审计），Duplicate=true，记一条
//   CONSISTENCY 级告警日志后抑制
func (l *Log) Append(ctx context.Context, ev *core.InteractionEvent) (*AppendResult, error) {
	if err := ev.Validate(l.cfg.MinViewSeconds); err != nil {
		return nil, err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	l.locks.Lock(ev.UserID)
	defer l.locks.Unlock(ev.UserID)

	dup, err := l.checkAndMarkDedupe(ctx, ev)
	if err != nil {
		return nil, err
	}

	events, err := l.load(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	events = append(events, ev)
	if len(events) > maxEventsPerUser {
		events = events[len(events)-trimEventsPerUser:]
	}
	if err := l.save(ctx, ev.UserID, events); err != nil {
		return nil, err
	}

	if dup {
		l.logger.Warn().
			Str("user_id", ev.UserID).
			Str("item_id", ev.ItemID).
			Msg("duplicate interaction within dedupe window, suppressing affinity update")
	}

	return &AppendResult{Event: ev, Duplicate: dup}, nil
}

// checkAndMarkDedupe 检查 (user,item) 去重标记并刷新。
// 标记值存事件时间戳，TTL 为去重窗口，过期自动清理。
func (l *Log) checkAndMarkDedupe(ctx context.Context, ev *core.InteractionEvent) (bool, error) {
	key := dedupeKeyPrefix + ev.UserID + ":" + ev.ItemID
	dup := false

	if raw, err := l.store.Get(ctx, key); err == nil {
		var last time.Time
		if last.UnmarshalText(raw) == nil {
			if ev.Timestamp.Sub(last) < l.cfg.DedupeWindow() {
				dup = true
			}
		}
	} else if !core.IsStoreNotFound(err) {
		return false, err
	}

	if !dup {
		ts, err := ev.Timestamp.MarshalText()
		if err != nil {
			return false, err
		}
		if err := l.store.Set(ctx, key, ts, l.cfg.DedupeWindowSeconds); err != nil {
			return false, err
		}
	}
	return dup, nil
}

// ListByUser 返回用户全部留存事件，按时间升序（用于画像重放）。
func (l *Log) ListByUser(ctx context.Context, userID string) ([]*core.InteractionEvent, error) {
	events, err := l.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// ViewedWithin 返回新鲜度窗口内用户浏览过的物品集合。
func (l *Log) ViewedWithin(ctx context.Context, userID string, window time.Duration, now time.Time) (map[string]struct{}, error) {
	events, err := l.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-window)
	seen := make(map[string]struct{})
	for _, ev := range events {
		if ev.Timestamp.After(cutoff) {
			seen[ev.ItemID] = struct{}{}
		}
	}
	return seen, nil
}

// HasEvents 判断用户是否有任何留存事件（用于"用户是否已知"的判定）。
func (l *Log) HasEvents(ctx context.Context, userID string) (bool, error) {
	events, err := l.load(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}

func (l *Log) load(ctx context.Context, userID string) ([]*core.InteractionEvent, error) {
	data, err := l.store.Get(ctx, logKeyPrefix+userID)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var events []*core.InteractionEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, core.NewDomainError(core.ModuleLog, core.ErrorCodeCorruption, "corrupt event log for user "+userID)
	}
	return events, nil
}

func (l *Log) save(ctx context.Context, userID string, events []*core.InteractionEvent) error {
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return l.store.Set(ctx, logKeyPrefix+userID, data)
}
