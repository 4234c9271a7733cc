package arena

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// FitnessCache is a short-TTL cache of computed fitness scores, keyed by
// allele id, fronting a shared Redis instance so multiple orchestrator
// processes avoid recomputing the same score on every selection pass. A
// nil *FitnessCache is valid and behaves as an always-miss cache.
type FitnessCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFitnessCache wraps an already-configured Redis client. ttl<=0 uses a
// 5 second default, matched to the selection loop's expected call rate.
func NewFitnessCache(client *redis.Client, ttl time.Duration) *FitnessCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &FitnessCache{client: client, ttl: ttl}
}

func (c *FitnessCache) key(alleleID string) string {
	return "sg:fitness:" + alleleID
}

// Get returns the cached fitness for alleleID, if present and unexpired.
func (c *FitnessCache) Get(ctx context.Context, alleleID string) (float64, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	raw, err := c.client.Get(ctx, c.key(alleleID)).Result()
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Set stores alleleID's computed fitness under the cache's configured TTL.
func (c *FitnessCache) Set(ctx context.Context, alleleID string, fitness float64) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Set(ctx, c.key(alleleID), strconv.FormatFloat(fitness, 'f', -1, 64), c.ttl)
}

// Invalidate drops the cached value for alleleID, since a fresh fitness
// record changes the computed score. No engine code calls it; cached
// values otherwise live until the TTL expires.
func (c *FitnessCache) Invalidate(ctx context.Context, alleleID string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, c.key(alleleID))
}

// FitnessWithCache computes compute(), consulting and populating cache
// (keyed by alleleID) when one is configured.
func FitnessWithCache(ctx context.Context, cache *FitnessCache, alleleID string, compute func() float64) float64 {
	if cache == nil {
		return compute()
	}
	if v, ok := cache.Get(ctx, alleleID); ok {
		return v
	}
	v := compute()
	cache.Set(ctx, alleleID, v)
	return v
}
