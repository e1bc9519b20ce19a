package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/migration-tracker/internal/logging"
	"github.com/redis/go-redis/v9"
)

// PriceCache caches settlement-currency prices in Redis with a TTL. Each
// instance owns its own key namespace and lifecycle, so independent
// instances can coexist in tests without leaking state.
type PriceCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewPriceCache creates a new price cache
func NewPriceCache(cache *RedisCache, ttl time.Duration) *PriceCache {
	return &PriceCache{
		cache: cache,
		ttl:   ttl,
	}
}

func priceKey(assetID string) string {
	return fmt.Sprintf("price:%s:usd", assetID)
}

// Get returns the cached price for an asset. The second return value is
// false on a cache miss. Cache errors degrade to a miss.
func (p *PriceCache) Get(ctx context.Context, assetID string) (float64, bool) {
	value, err := p.cache.Get(ctx, priceKey(assetID))
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Price cache read failed, treating as miss")
		return 0, false
	}

	price, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Corrupt price cache entry, treating as miss")
		return 0, false
	}

	return price, true
}

// Put stores a price for an asset. Write failures are logged and swallowed;
// the cache is an optimization, not a source of truth.
func (p *PriceCache) Put(ctx context.Context, assetID string, price float64) {
	value := strconv.FormatFloat(price, 'f', -1, 64)
	if err := p.cache.Set(ctx, priceKey(assetID), value, p.ttl); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Price cache write failed")
	}
}

// Invalidate drops the cached price for an asset.
func (p *PriceCache) Invalidate(ctx context.Context, assetID string) error {
	return p.cache.Del(ctx, priceKey(assetID))
}
