// Package cache provides caching decorators for remote service interfaces.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

// CachingInfoService decorates an InfoService with Redis caching.
// Only successful, non-blank answers are stored; failures always reach the inner service again.
type CachingInfoService struct {
	inner     usecase.InfoService
	rdb       *redis.Client
	ttl       time.Duration
	ttlFunc   func(now time.Time) time.Duration
	now       func() time.Time
	namespace string
}

var _ usecase.InfoService = (*CachingInfoService)(nil)

// Option configures a CachingInfoService.
type Option func(*CachingInfoService)

// WithDailyRefresh expires every entry at the next given hour (Asia/Shanghai).
// The TTL is computed at each write, so entries never outlive the refresh.
func WithDailyRefresh(hour int) Option {
	return func(c *CachingInfoService) {
		c.ttlFunc = func(now time.Time) time.Duration {
			return TimeUntilNextDailyRefresh(hour, now)
		}
	}
}

// NewCachingInfoService decorates an InfoService with Redis caching.
// If ttl is 0, it defaults to 24 hours. If namespace is empty, it uses "enrich".
func NewCachingInfoService(rdb *redis.Client, ttl time.Duration, inner usecase.InfoService, namespace string, opts ...Option) *CachingInfoService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if namespace == "" {
		namespace = "enrich"
	}
	c := &CachingInfoService{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		now:       time.Now,
		namespace: namespace,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// entryTTL returns the expiry for an entry written now.
func (c *CachingInfoService) entryTTL() time.Duration {
	if c.ttlFunc != nil {
		if d := c.ttlFunc(c.now()); d > 0 {
			return d
		}
	}
	return c.ttl
}

// Ask returns the cached answer for the same model and prompt, falling back to the inner service.
func (c *CachingInfoService) Ask(ctx context.Context, req entity.InfoRequest) (string, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil {
		return c.inner.Ask(ctx, req)
	}

	key := c.cacheKey(req)

	// 1) Check cache
	if s, err := c.rdb.Get(ctx, key).Result(); err == nil && s != "" {
		return s, nil
	} else if err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("enrichment cache read failed", "key", key, "error", err)
	}

	// 2) Fallback to the remote service
	out, err := c.inner.Ask(ctx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return out, nil
	}

	// 3) Store in cache (best effort)
	if err := c.rdb.Set(ctx, key, out, c.entryTTL()).Err(); err != nil {
		slog.Warn("enrichment cache write failed", "key", key, "error", err)
	}
	return out, nil
}

// Purge deletes every cached answer in the namespace and returns the number of removed keys.
func (c *CachingInfoService) Purge(ctx context.Context) (int, error) {
	if c.rdb == nil {
		return 0, nil
	}
	return c.deleteByPattern(ctx, c.namespace+":*")
}

// cacheKey generates a cache key from the model and a digest of the prompt.
func (c *CachingInfoService) cacheKey(req entity.InfoRequest) string {
	sum := sha256.Sum256([]byte(req.Prompt))
	return fmt.Sprintf("%s:%s:%s",
		c.namespace,
		safe(req.Model),
		hex.EncodeToString(sum[:16]),
	)
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingInfoService) deleteByPattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
