// Package rediscache wraps storage ports with redis-backed caching for the
// hot reads of the ingestion loop. Cache failures never surface to callers;
// every miss or redis error falls back to the backing store.
package rediscache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
)

// SettingsCache is a read-through cache over the watermark store. Advancing
// the watermark evicts the cached value instead of writing through, because
// a stale advance is silently ignored by the store and must not overwrite a
// newer cached cursor.
type SettingsCache struct {
	base  ports.SettingsStore
	redis *redis.Client
	ttl   time.Duration
}

// NewSettingsCache creates the caching wrapper. A nil client disables
// caching and every call goes straight to the base store.
func NewSettingsCache(base ports.SettingsStore, client *redis.Client, ttl time.Duration) *SettingsCache {
	if ttl < 0 {
		ttl = 0
	}
	return &SettingsCache{base: base, redis: client, ttl: ttl}
}

func (c *SettingsCache) GetWatermark(ctx context.Context, source domain.Source) (int64, error) {
	if mark, ok := c.loadWatermark(ctx, source); ok {
		return mark, nil
	}

	mark, err := c.base.GetWatermark(ctx, source)
	if err != nil {
		return 0, err
	}

	c.storeWatermark(ctx, source, mark)
	return mark, nil
}

func (c *SettingsCache) AdvanceWatermark(ctx context.Context, source domain.Source, newWatermark int64) error {
	if err := c.base.AdvanceWatermark(ctx, source, newWatermark); err != nil {
		return err
	}

	c.evict(ctx, source)
	return nil
}

func (c *SettingsCache) loadWatermark(ctx context.Context, source domain.Source) (int64, bool) {
	if c.redis == nil {
		return 0, false
	}
	data, err := c.redis.Get(ctx, watermarkCacheKey(source)).Result()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, watermarkCacheKey(source)).Err()
		}
		return 0, false
	}
	mark, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		_ = c.redis.Del(ctx, watermarkCacheKey(source)).Err()
		return 0, false
	}
	return mark, true
}

func (c *SettingsCache) storeWatermark(ctx context.Context, source domain.Source, mark int64) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	_ = c.redis.Set(ctx, watermarkCacheKey(source), strconv.FormatInt(mark, 10), c.ttl).Err()
}

func (c *SettingsCache) evict(ctx context.Context, source domain.Source) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, watermarkCacheKey(source)).Err()
}

func watermarkCacheKey(source domain.Source) string {
	return "watermark:" + string(source)
}

var _ ports.SettingsStore = (*SettingsCache)(nil)
