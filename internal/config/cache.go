package config

import "time"

// CacheConfig controls the Redis response cache used for closed-day
// summaries.  Those responses never change once written, so the TTL only
// bounds memory use.
type CacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		TTL:          envDur("CACHE_TTL", 24*time.Hour),
		Prefix:       envStr("CACHE_PREFIX", "summary"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 64<<10),
	}
}
