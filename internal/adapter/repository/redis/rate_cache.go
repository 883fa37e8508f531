package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fiscalhost/ledger/internal/infrastructure/metrics"
	"github.com/fiscalhost/ledger/internal/usecase"
)

// RateCache decorates a usecase.RateService with a Redis read-through cache.
// Historical rates never change, so entries are cached per day; the TTL only
// bounds memory.
type RateCache struct {
	client  *redis.Client
	next    usecase.RateService
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRateCache creates a caching decorator around the given rate service.
func NewRateCache(client *redis.Client, next usecase.RateService, ttl time.Duration, m *metrics.Metrics, logger zerolog.Logger) *RateCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RateCache{
		client:  client,
		next:    next,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// LookupRate returns the cached rate when present, otherwise delegates to the
// underlying service and caches the result.
func (c *RateCache) LookupRate(ctx context.Context, from, to string, at time.Time) (decimal.Decimal, error) {
	key := rateKey(from, to, at)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		rate, parseErr := decimal.NewFromString(cached)
		if parseErr == nil {
			if c.metrics != nil {
				c.metrics.FxLookups.WithLabelValues("cache").Inc()
				c.metrics.FxCacheHits.Inc()
			}
			return rate, nil
		}
		c.logger.Warn().Str("key", key).Str("value", cached).Msg("corrupt cached rate, refetching")
	} else if err != redis.Nil {
		// Cache trouble must not block rate resolution.
		c.logger.Warn().Err(err).Str("key", key).Msg("rate cache read failed")
	}

	rate, err := c.next.LookupRate(ctx, from, to, at)
	if err != nil {
		return decimal.Zero, err
	}

	if setErr := c.client.Set(ctx, key, rate.String(), c.ttl).Err(); setErr != nil {
		c.logger.Warn().Err(setErr).Str("key", key).Msg("rate cache write failed")
	}

	return rate, nil
}

func rateKey(from, to string, at time.Time) string {
	return fmt.Sprintf("fx:%s:%s:%s", from, to, at.UTC().Format("2006-01-02"))
}
