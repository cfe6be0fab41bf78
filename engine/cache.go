package engine

import "time"

// RulesetCache caches the list of active ruleset records so evaluation does
// not hit the store on every request.
type RulesetCache interface {
	// Get returns the cached records, or nil on a miss or after expiry
	Get() []*RulesetRecord

	// Set stores records in the cache
	Set(records []*RulesetRecord)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if the cache holds unexpired data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Zero means entries live until invalidated.
	TTL time.Duration
}

// DefaultCacheConfig invalidates only on mutations.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
