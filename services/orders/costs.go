package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/orders-tpc/internal/logging"
)

const costKeyPrefix = "orders:item-cost:"

// costCache é o subconjunto de *redis.Client usado pelo cache de custos
type costCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedCostSource guarda no Redis os custos obtidos de next. Falhas do
// Redis só degradam para a consulta direta.
type CachedCostSource struct {
	cache costCache
	next  CostSource
	ttl   time.Duration
}

func NewCachedCostSource(cache costCache, next CostSource, ttl time.Duration) *CachedCostSource {
	return &CachedCostSource{cache: cache, next: next, ttl: ttl}
}

func (s *CachedCostSource) ItemCost(ctx context.Context, itemID string) (decimal.Decimal, error) {
	key := costKeyPrefix + itemID

	cached, err := s.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cost, perr := decimal.NewFromString(cached); perr == nil {
			return cost, nil
		}
		logging.Ctx(ctx).Warn().Str("key", key).Str("value", cached).Msg("⚠️ discarding malformed cached cost")
	case !errors.Is(err, redis.Nil):
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("⚠️ cost cache unavailable")
	}

	cost, err := s.next.ItemCost(ctx, itemID)
	if err != nil {
		return decimal.Zero, err
	}

	if err := s.cache.Set(ctx, key, cost.String(), s.ttl).Err(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("⚠️ failed to cache cost")
	}
	return cost, nil
}
