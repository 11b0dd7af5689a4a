// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/feature/candles/usecase"
)

// CachingCandleRepository decorates a CandleRepository with Redis caching.
// Only FindRecent is cached; the other reads go straight to the store.
type CachingCandleRepository struct {
	inner     usecase.CandleRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	clock     clockwork.Clock
	logger    *zap.Logger
}

var _ usecase.CandleRepository = (*CachingCandleRepository)(nil)

// NewCachingCandleRepository decorates a CandleRepository with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "candles".
func NewCachingCandleRepository(rdb *redis.Client, ttl time.Duration, inner usecase.CandleRepository, namespace string, logger *zap.Logger) *CachingCandleRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "candles"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingCandleRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
	}
}

// UpsertBatch inserts or updates candles and invalidates related cache entries.
func (c *CachingCandleRepository) UpsertBatch(ctx context.Context, candles []entity.Candle) error {
	if err := c.inner.UpsertBatch(ctx, candles); err != nil {
		return err
	}
	if c.rdb == nil || len(candles) == 0 {
		return nil
	}

	// Invalidate affected cache entries (keys per symbol+interval)
	seen := map[string]struct{}{}
	for _, cd := range candles {
		prefix := c.cacheKeyPrefix(cd.Symbol, cd.Interval)
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		if err := c.deleteByPattern(ctx, prefix+"*"); err != nil {
			c.logger.Warn("cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
		}
	}
	return nil
}

// FindRecent retrieves candles, checking cache first then falling back to the database.
func (c *CachingCandleRepository) FindRecent(ctx context.Context, symbol, interval string, count int) ([]entity.Candle, error) {
	if c.rdb == nil {
		return c.inner.FindRecent(ctx, symbol, interval, count)
	}

	key := c.cacheKey(symbol, interval, count)

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.Candle
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := c.inner.FindRecent(ctx, symbol, interval, count)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttlFor(interval)).Err(); err != nil {
			c.logger.Debug("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}

	return out, nil
}

func (c *CachingCandleRepository) FindRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]entity.Candle, error) {
	return c.inner.FindRange(ctx, symbol, interval, from, to)
}

func (c *CachingCandleRepository) Stats(ctx context.Context, symbol, interval string) (entity.SeriesStats, error) {
	return c.inner.Stats(ctx, symbol, interval)
}

func (c *CachingCandleRepository) Summary(ctx context.Context) ([]entity.SeriesStats, error) {
	return c.inner.Summary(ctx)
}

// ttlFor caps the configured TTL at the close of the current bar, so a
// cached window never outlives the bar it ends on.
func (c *CachingCandleRepository) ttlFor(interval string) time.Duration {
	tf, err := entity.ParseTimeframe(interval)
	if err != nil {
		return c.ttl
	}
	if d := TimeUntilNextBar(c.clock.Now(), tf.Duration); d > 0 && d < c.ttl {
		return d
	}
	return c.ttl
}

func (c *CachingCandleRepository) cacheKey(symbol, interval string, count int) string {
	return fmt.Sprintf("%s:%s:%s:%d",
		c.namespace,
		safe(symbol),
		safe(interval),
		count,
	)
}

func (c *CachingCandleRepository) cacheKeyPrefix(symbol, interval string) string {
	return fmt.Sprintf("%s:%s:%s:",
		c.namespace,
		safe(symbol),
		safe(interval),
	)
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingCandleRepository) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safe escapes characters that are problematic for Redis keys.
// "EUR/USD" keeps its slash; only separators and blanks are replaced.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
