package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig 是推荐引擎的全部可调参数（支持 YAML）。
//
// 衰减因子、时长权重上限、多样性配额等没有唯一正确值，
// 全部暴露为配置，由线上指标调优，代码中不硬编码。
type EngineConfig struct {
	// Dimension 系统统一的向量维度 D
	Dimension int `yaml:"dimension" json:"dimension"`

	// Alpha 画像衰减因子 α ∈ (0,1)：越大越偏向新事件
	Alpha float64 `yaml:"alpha" json:"alpha"`

	// MinViewSeconds 合格浏览的最小时长阈值（秒），低于此值入口拒绝
	MinViewSeconds float64 `yaml:"min_view_seconds" json:"min_view_seconds"`

	// DurationCapSeconds 时长权重的饱和上限（秒），超长停留不再增益
	DurationCapSeconds float64 `yaml:"duration_cap_seconds" json:"duration_cap_seconds"`

	// DedupeWindowSeconds 去重窗口（秒）：同一 (user,item) 在窗口内的重复上报
	// 只计一次画像更新
	DedupeWindowSeconds int `yaml:"dedupe_window_seconds" json:"dedupe_window_seconds"`

	// FreshnessWindowSeconds 新鲜度窗口（秒）：窗口内浏览过的物品不再推荐
	FreshnessWindowSeconds int `yaml:"freshness_window_seconds" json:"freshness_window_seconds"`

	// OverFetchFactor 召回放大倍数：检索 N*factor 个候选，补偿过滤与多样性丢弃
	OverFetchFactor int `yaml:"over_fetch_factor" json:"over_fetch_factor"`

	// RetrieveTimeoutMS 向量检索的超时（毫秒），超时走热度兜底
	RetrieveTimeoutMS int `yaml:"retrieve_timeout_ms" json:"retrieve_timeout_ms"`

	// 排序权重：score = w_sim*similarity + w_rec*recency + w_pop*popularity
	WeightSimilarity float64 `yaml:"weight_similarity" json:"weight_similarity"`
	WeightRecency    float64 `yaml:"weight_recency" json:"weight_recency"`
	WeightPopularity float64 `yaml:"weight_popularity" json:"weight_popularity"`

	// RecencyHalfLifeHours 新近度衰减半衰期（小时）
	RecencyHalfLifeHours float64 `yaml:"recency_half_life_hours" json:"recency_half_life_hours"`

	// MaxPerCreator / MaxPerCategory 多样性配额 M：最终列表中同创作者/同类目上限
	MaxPerCreator  int `yaml:"max_per_creator" json:"max_per_creator"`
	MaxPerCategory int `yaml:"max_per_category" json:"max_per_category"`

	// CacheTTLSeconds 每用户推荐结果缓存的 TTL（秒）
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// ProfileShards 画像写锁的分片数（同一用户串行，不同用户并发）
	ProfileShards int `yaml:"profile_shards" json:"profile_shards"`

	// HotKey 热度榜单的有序集合 key
	HotKey string `yaml:"hot_key" json:"hot_key"`

	// DefaultLimit 未指定 limit 时的默认返回条数
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
}

// DefaultEngineConfig 返回一套可直接运行的默认参数。
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Dimension:              64,
		Alpha:                  0.30,
		MinViewSeconds:         1,
		DurationCapSeconds:     120,
		DedupeWindowSeconds:    5,
		FreshnessWindowSeconds: 3600,
		OverFetchFactor:        3,
		RetrieveTimeoutMS:      200,
		WeightSimilarity:       0.6,
		WeightRecency:          0.2,
		WeightPopularity:       0.2,
		RecencyHalfLifeHours:   72,
		MaxPerCreator:          3,
		MaxPerCategory:         3,
		CacheTTLSeconds:        60,
		ProfileShards:          64,
		HotKey:                 "hot:items",
		DefaultLimit:           20,
	}
}

// LoadEngineConfig 从 YAML 文件加载配置，未出现的字段保留默认值。
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置的合法性。
func (c *EngineConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", c.Dimension)
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0,1), got %v", c.Alpha)
	}
	if c.OverFetchFactor < 1 {
		return fmt.Errorf("over_fetch_factor must be >= 1, got %d", c.OverFetchFactor)
	}
	if c.ProfileShards <= 0 {
		return fmt.Errorf("profile_shards must be positive, got %d", c.ProfileShards)
	}
	if c.DurationCapSeconds <= 0 {
		return fmt.Errorf("duration_cap_seconds must be positive, got %v", c.DurationCapSeconds)
	}
	return nil
}

// DedupeWindow 去重窗口时长。
func (c *EngineConfig) DedupeWindow() time.Duration {
	return time.Duration(c.DedupeWindowSeconds) * time.Second
}

// FreshnessWindow 新鲜度窗口时长。
func (c *EngineConfig) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowSeconds) * time.Second
}

// RetrieveTimeout 向量检索超时。
func (c *EngineConfig) RetrieveTimeout() time.Duration {
	return time.Duration(c.RetrieveTimeoutMS) * time.Millisecond
}

// CacheTTL 结果缓存 TTL。
func (c *EngineConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
