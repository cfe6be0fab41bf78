package engine

import (
	"sync"
	"time"
)

// InMemoryRulesetCache is an in-memory RulesetCache.
// Safe for concurrent use.
type InMemoryRulesetCache struct {
	records  []*RulesetRecord
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemoryRulesetCache creates a new in-memory ruleset cache
func NewInMemoryRulesetCache(config CacheConfig) *InMemoryRulesetCache {
	return &InMemoryRulesetCache{config: config}
}

func (c *InMemoryRulesetCache) fresh() bool {
	if !c.isValid {
		return false
	}
	return c.config.TTL <= 0 || time.Since(c.cachedAt) <= c.config.TTL
}

// Get returns a copy of the cached records, or nil when invalid or expired
func (c *InMemoryRulesetCache) Get() []*RulesetRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		return nil
	}

	out := make([]*RulesetRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Set stores a copy of records
func (c *InMemoryRulesetCache) Set(records []*RulesetRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = make([]*RulesetRecord, len(records))
	copy(c.records, records)
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache
func (c *InMemoryRulesetCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.records = nil
}

// IsValid returns true if cache contains unexpired data
func (c *InMemoryRulesetCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.fresh()
}
