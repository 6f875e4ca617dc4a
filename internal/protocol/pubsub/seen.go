package pubsub

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// seenCache 带过期时间的消息 ID 集合
type seenCache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, struct{}]
}

func newSeenCache(size int, ttl time.Duration) *seenCache {
	return &seenCache{lru: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Add 记录 id，首次出现时返回 true
func (c *seenCache) Add(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Contains(id) {
		return false
	}
	c.lru.Add(id, struct{}{})
	return true
}

// Has 是否已见
func (c *seenCache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(id)
}

func (c *seenCache) Len() int {
	return c.lru.Len()
}
