// Package shardlock 提供按 key 分片的互斥锁：同一 key 串行，不同 key（大概率）并发。
// 用于画像更新与日志追加的"每用户独占区"，不引入全局锁。
package shardlock

import (
	"hash/fnv"
	"sync"
)

// ShardedMutex 是固定分片数的 key 级互斥锁。
// 两个 key 哈希到同一分片时会互相等待，只影响并发度，不影响正确性。
type ShardedMutex struct {
	shards []sync.Mutex
}

// New 创建 n 个分片的锁；n <= 0 时使用 64。
func New(n int) *ShardedMutex {
	if n <= 0 {
		n = 64
	}
	return &ShardedMutex{shards: make([]sync.Mutex, n)}
}

func (s *ShardedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Lock 锁定 key 所在分片。
func (s *ShardedMutex) Lock(key string) {
	s.shard(key).Lock()
}

// Unlock 释放 key 所在分片。
func (s *ShardedMutex) Unlock(key string) {
	s.shard(key).Unlock()
}
