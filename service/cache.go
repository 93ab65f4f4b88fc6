package service

import (
	"sync"
	"time"
)

// ResultCache 是每用户推荐结果的进程内 TTL 缓存。
//
// 一致性契约：
//   - TTL 内重复请求返回同一列表（不重算）
//   - 用户产生新交互后主动失效，下一次请求重算
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	resp      *RecommendResponse
	expiresAt time.Time
}

// NewResultCache 创建结果缓存；ttl<=0 时缓存退化为直通（永不命中）。
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

func (c *ResultCache) Get(key string) (*RecommendResponse, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.resp, true
}

func (c *ResultCache) Set(key string, resp *RecommendResponse) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{resp: resp, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// InvalidateUser 移除某用户的全部缓存条目（不同 limit 各占一个 key）。
func (c *ResultCache) InvalidateUser(userID string) {
	prefix := userID + ":"
	c.mu.Lock()
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}
