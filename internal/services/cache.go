package services

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type cacheItem struct {
	data      interface{}
	expiresAt time.Time
}

// TTLCache memoizes fetch results by request-shaped key, each entry with its
// own TTL. Concurrent misses for the same key are collapsed into a single
// upstream call. Both the hourly-forecast and grid paths share one instance.
type TTLCache struct {
	mu              sync.RWMutex
	items           map[string]cacheItem
	group           singleflight.Group
	logger          *zap.Logger
	maxSize         int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
}

func NewTTLCache(maxSize int, logger *zap.Logger) *TTLCache {
	cache := &TTLCache{
		items:           make(map[string]cacheItem),
		logger:          logger,
		maxSize:         maxSize,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go cache.startCleanup()

	return cache
}

// GetOrFetch returns the cached value for key if it is younger than its TTL,
// otherwise calls fetch once (single-flight) and caches the result. A value
// older than its TTL is treated as absent.
func (c *TTLCache) GetOrFetch(key string, ttl time.Duration, fetch func() (interface{}, error)) (interface{}, error) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if exists && time.Now().Before(item.expiresAt) {
		c.logger.Debug("Cache hit", zap.String("key", key))
		return item.data, nil
	}

	value, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Re-check: another waiter may have filled the entry while we
		// queued on the flight group.
		c.mu.RLock()
		item, exists := c.items[key]
		c.mu.RUnlock()
		if exists && time.Now().Before(item.expiresAt) {
			return item.data, nil
		}

		data, err := fetch()
		if err != nil {
			return nil, err
		}
		c.set(key, data, ttl)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("Cache fetch shared with concurrent caller", zap.String("key", key))
	}
	return value, nil
}

func (c *TTLCache) set(key string, data interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	c.items[key] = cacheItem{
		data:      data,
		expiresAt: time.Now().Add(ttl),
	}
}

// Invalidate drops one entry.
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *TTLCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, item := range c.items {
		if oldestKey == "" || item.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.expiresAt
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.logger.Debug("Evicted oldest cache entry", zap.String("key", oldestKey))
	}
}

func (c *TTLCache) startCleanup() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *TTLCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expired := 0
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
			expired++
		}
	}
	if expired > 0 {
		c.logger.Debug("Cleaned expired cache entries", zap.Int("count", expired))
	}
}

func (c *TTLCache) Stop() {
	close(c.stopCleanup)
}

func (c *TTLCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"items":    len(c.items),
		"max_size": c.maxSize,
	}
}
