package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/dotation/internal/config"
	wagedomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const wageKeyPrefix = "dotation:wage_threshold:"

// WageThresholdCache stores yearly thresholds read on every cycle creation.
type WageThresholdCache interface {
	Get(ctx context.Context, year int) (*wagedomain.WageThreshold, bool)
	Set(ctx context.Context, threshold wagedomain.WageThreshold)
	Invalidate(ctx context.Context, year int)
}

type WageCacheParams struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Redis  *redis.Client `optional:"true"`
}

// NewWageThresholdCache picks Redis when a client is configured and an
// in-process cache otherwise.
func NewWageThresholdCache(p WageCacheParams) WageThresholdCache {
	ttl := p.Config.WageCacheTTL
	if p.Redis != nil {
		return NewRedisWageThresholdCache(p.Redis, ttl, p.Log)
	}
	return NewMemoryWageThresholdCache(ttl)
}

type memoryWageCache struct {
	entries Cache[int, wagedomain.WageThreshold]
	ttl     time.Duration
}

func NewMemoryWageThresholdCache(ttl time.Duration) WageThresholdCache {
	return &memoryWageCache{
		entries: NewTTLCache[int, wagedomain.WageThreshold](),
		ttl:     ttl,
	}
}

func (c *memoryWageCache) Get(_ context.Context, year int) (*wagedomain.WageThreshold, bool) {
	value, ok := c.entries.Get(year)
	if !ok {
		return nil, false
	}
	return &value, true
}

func (c *memoryWageCache) Set(_ context.Context, threshold wagedomain.WageThreshold) {
	c.entries.Set(threshold.Year, threshold, c.ttl)
}

func (c *memoryWageCache) Invalidate(_ context.Context, year int) {
	c.entries.Delete(year)
}

type redisWageCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisWageThresholdCache(client *redis.Client, ttl time.Duration, log *zap.Logger) WageThresholdCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &redisWageCache{
		client: client,
		ttl:    ttl,
		log:    log.Named("cache.wage_threshold"),
	}
}

func (c *redisWageCache) Get(ctx context.Context, year int) (*wagedomain.WageThreshold, bool) {
	raw, err := c.client.Get(ctx, wageKey(year)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis get failed", zap.Int("year", year), zap.Error(err))
		}
		return nil, false
	}
	var threshold wagedomain.WageThreshold
	if err := json.Unmarshal(raw, &threshold); err != nil {
		c.log.Warn("cached threshold is corrupt", zap.Int("year", year), zap.Error(err))
		c.Invalidate(ctx, year)
		return nil, false
	}
	return &threshold, true
}

func (c *redisWageCache) Set(ctx context.Context, threshold wagedomain.WageThreshold) {
	raw, err := json.Marshal(threshold)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, wageKey(threshold.Year), raw, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", zap.Int("year", threshold.Year), zap.Error(err))
	}
}

func (c *redisWageCache) Invalidate(ctx context.Context, year int) {
	if err := c.client.Del(ctx, wageKey(year)).Err(); err != nil {
		c.log.Warn("redis delete failed", zap.Int("year", year), zap.Error(err))
	}
}

func wageKey(year int) string {
	return wageKeyPrefix + strconv.Itoa(year)
}
