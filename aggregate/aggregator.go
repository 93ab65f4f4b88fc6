// Package aggregate 实现信号聚合器：把合格交互事件折叠为用户的衰减兴趣向量。
//
// 更新公式：affinity' = normalize((1-α)·affinity + α·weight(duration)·itemVector)
//
// 并发模型：
//   - 同一用户的更新必须串行（分片锁），否则交错的衰减计算会丢失更新
//   - 不同用户的更新相互独立，可并发进行
//   - 读路径允许读到稍旧的画像（最终一致的个性化），读不被写无限阻塞
package aggregate

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/pkg/shardlock"
)

// Aggregator 把交互事件增量折叠进 AffinityProfile。
type Aggregator struct {
	profiles   ProfileStore
	embeddings core.EmbeddingStore
	cfg        *core.EngineConfig
	locks      *shardlock.ShardedMutex
	logger     zerolog.Logger
}

func New(profiles ProfileStore, embeddings core.EmbeddingStore, cfg *core.EngineConfig, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		profiles:   profiles,
		embeddings: embeddings,
		cfg:        cfg,
		locks:      shardlock.New(cfg.ProfileShards),
		logger:     logger.With().Str("component", "aggregate").Logger(),
	}
}

// Apply 将一个合格、非重复的事件应用到用户画像。
//
// 时间戳早于画像最后更新时间的事件视为乱序投递：记 CONSISTENCY 告警后跳过，
// 保证单用户画像更新的时间单调性。调用方负责去重（见 eventlog）。
func (a *Aggregator) Apply(ctx context.Context, ev *core.InteractionEvent) error {
	a.locks.Lock(ev.UserID)
	defer a.locks.Unlock(ev.UserID)

	p, err := a.loadOrInit(ctx, ev.UserID)
	if err != nil {
		return err
	}

	if ev.Timestamp.Before(p.UpdatedAt) {
		a.logger.Warn().
			Str("user_id", ev.UserID).
			Str("item_id", ev.ItemID).
			Time("event_ts", ev.Timestamp).
			Time("profile_ts", p.UpdatedAt).
			Msg("out-of-order event, skipping affinity update")
		return nil
	}

	if err := a.fold(ctx, p, ev); err != nil {
		return err
	}
	return a.profiles.SaveProfile(ctx, p)
}

// Rebuild 从交互日志从头重放用户画像（幂等，用于恢复）。
//
// 事件按时间升序重放；日志中为审计保留的窗口内重复事件在此处同样只计一次。
func (a *Aggregator) Rebuild(ctx context.Context, userID string, events []*core.InteractionEvent) (*core.AffinityProfile, error) {
	a.locks.Lock(userID)
	defer a.locks.Unlock(userID)

	sorted := make([]*core.InteractionEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	p := core.NewAffinityProfile(userID, a.cfg.Dimension)
	lastByItem := make(map[string]int64)

	for _, ev := range sorted {
		if ev.DurationSeconds < a.cfg.MinViewSeconds {
			continue
		}
		if last, ok := lastByItem[ev.ItemID]; ok {
			if ev.Timestamp.Unix()-last < int64(a.cfg.DedupeWindowSeconds) {
				continue
			}
		}
		lastByItem[ev.ItemID] = ev.Timestamp.Unix()

		if err := a.fold(ctx, p, ev); err != nil {
			return nil, err
		}
	}

	if err := a.profiles.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProfile 返回画像的拷贝；不存在时返回 NOT_FOUND。
func (a *Aggregator) GetProfile(ctx context.Context, userID string) (*core.AffinityProfile, error) {
	p, err := a.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// fold 把单个事件折叠进画像（调用方持锁）。
// 物品向量缺失（尚未 Ready 或已删除）时跳过该事件，不视为错误。
func (a *Aggregator) fold(ctx context.Context, p *core.AffinityProfile, ev *core.InteractionEvent) error {
	vec, err := a.embeddings.Get(ctx, ev.ItemID)
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return err
	}
	if len(vec) != a.cfg.Dimension {
		// 维度不符的向量意味着存储损坏：拒绝使用并告警，不做静默修复
		a.logger.Error().
			Str("item_id", ev.ItemID).
			Int("got", len(vec)).
			Int("want", a.cfg.Dimension).
			Msg("stored vector dimension mismatch, alert")
		return core.NewDomainError(core.ModuleProfile, core.ErrorCodeCorruption, "stored vector dimension mismatch: "+ev.ItemID)
	}

	alpha := a.cfg.Alpha
	w := DurationWeight(ev.DurationSeconds, a.cfg.DurationCapSeconds)
	for i := range p.Vector {
		p.Vector[i] = (1-alpha)*p.Vector[i] + alpha*w*vec[i]
	}
	normalize(p.Vector)

	p.EventCount++
	if ev.Timestamp.After(p.UpdatedAt) {
		p.UpdatedAt = ev.Timestamp
	}
	return nil
}

func (a *Aggregator) loadOrInit(ctx context.Context, userID string) (*core.AffinityProfile, error) {
	p, err := a.profiles.GetProfile(ctx, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewAffinityProfile(userID, a.cfg.Dimension), nil
		}
		return nil, err
	}
	if len(p.Vector) != a.cfg.Dimension {
		return nil, core.NewDomainError(core.ModuleProfile, core.ErrorCodeCorruption, "stored profile dimension mismatch: "+userID)
	}
	return p, nil
}

// DurationWeight 是浏览时长的饱和权重：单调不减、上限封顶，
// 超长停留不会无限放大贡献。
//
//	weight(d) = log1p(min(d, cap)) / log1p(cap) ∈ [0, 1]
func DurationWeight(seconds, capSeconds float64) float64 {
	if seconds < 0 {
		return 0
	}
	if seconds > capSeconds {
		seconds = capSeconds
	}
	return math.Log1p(seconds) / math.Log1p(capSeconds)
}

// normalize 原地做 L2 归一化；零向量保持不变。
func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
}
