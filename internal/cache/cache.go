package cache

import (
	"sync"
	"time"
)

// Config 缓存容量与TTL配置
type Config struct {
	Capacity int
	TTL      time.Duration
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache 进程内 TTL + 容量上限缓存
// 读多写少；写入并发竞争允许后写覆盖（底层存储行才是数据源）
type Cache[K comparable, V any] struct {
	mu       sync.RWMutex
	entries  map[K]entry[V]
	capacity int
	ttl      time.Duration
}

// New 创建缓存；capacity <= 0 表示不限容量，ttl <= 0 表示不过期
func New[K comparable, V any](cfg Config) *Cache[K, V] {
	return &Cache[K, V]{
		entries:  make(map[K]entry[V]),
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
	}
}

// Get 查找缓存项；过期项视为未命中并顺带删除
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.mu.Lock()
		// 重查：期间可能已被新写入覆盖
		if cur, still := c.entries[key]; still && cur.expires.Equal(e.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put 写入缓存项；达到容量上限时先剔除过期项，仍满则逐出最早到期项
func (c *Cache[K, V]) Put(key K, value V) {
	var expires time.Time
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity > 0 && len(c.entries) >= c.capacity {
		if _, exists := c.entries[key]; !exists {
			c.evictLocked()
		}
	}
	c.entries[key] = entry[V]{value: value, expires: expires}
}

// Invalidate 删除缓存项
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len 当前缓存项数
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLocked 先清过期项；仍满则逐出最早到期的一项
func (c *Cache[K, V]) evictLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	if c.capacity <= 0 || len(c.entries) < c.capacity {
		return
	}

	var oldestKey K
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.expires.Before(oldest) {
			oldestKey = k
			oldest = e.expires
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
