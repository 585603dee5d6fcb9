package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CacheService provides high-level caching for computed portfolio data
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{redis: redis, ttl: ttl}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeySnapshot is for a wallet's latest daily snapshot
	CacheKeySnapshot CacheKeyType = "snapshot"
	// CacheKeyAPY is for computed APY result sets
	CacheKeyAPY CacheKeyType = "apy"
	// CacheKeyPrices is for symbol price maps
	CacheKeyPrices CacheKeyType = "prices"
)

// Key generates a namespaced cache key: <type>:<param1>:<param2>:...
// Parameters are lowercased for consistency.
func (c *CacheService) Key(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, string(keyType))
	for _, p := range params {
		parts = append(parts, strings.ToLower(p))
	}
	return strings.Join(parts, ":")
}

// SetJSON marshals a value and stores it with the configured TTL
func (c *CacheService) SetJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value for %s: %w", key, err)
	}
	return c.redis.Set(ctx, key, data, c.ttl)
}

// GetJSON retrieves and unmarshals a cached value. Returns false when the
// key is absent or unreadable; cache misses are never errors.
func (c *CacheService) GetJSON(ctx context.Context, key string, out interface{}) bool {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false
	}
	return true
}

// InvalidateWallet drops all cached data derived from one wallet's holdings
func (c *CacheService) InvalidateWallet(ctx context.Context, userID, walletAddress string) error {
	keys := []string{
		c.Key(CacheKeySnapshot, userID, walletAddress),
	}

	// APY results are keyed per user with varying date/period parameters
	apyKeys, err := c.redis.Keys(ctx, c.Key(CacheKeyAPY, userID)+":*")
	if err == nil {
		keys = append(keys, apyKeys...)
	}

	return c.redis.Del(ctx, keys...)
}
