package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

const cacheKeyPrefix = "ledger:tx:"

type querier interface {
	GetTransaction(ctx context.Context, digest string) (*Transaction, error)
}

// CachedClient memoizes found transactions in Redis. Finalized transactions
// never change, so only misses (ErrNotFound) and errors bypass the cache.
// Redis failures degrade to a direct ledger query.
type CachedClient struct {
	next        querier
	redisClient *redis.Client
	ttl         time.Duration
}

func NewCachedClient(next querier, redisClient *redis.Client, ttl time.Duration) *CachedClient {
	return &CachedClient{
		next:        next,
		redisClient: redisClient,
		ttl:         ttl,
	}
}

func (c *CachedClient) GetTransaction(ctx context.Context, digest string) (*Transaction, error) {
	key := cacheKeyPrefix + digest

	raw, err := c.redisClient.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var tx Transaction
		if err := json.Unmarshal(raw, &tx); err == nil {
			telemetry.LedgerCacheTotal.WithLabelValues("hit").Inc()
			return &tx, nil
		}
		telemetry.Logger.Warn("Discarding undecodable cached transaction", zap.String("digest", digest))
	case !errors.Is(err, redis.Nil):
		telemetry.Logger.Warn("Ledger cache read failed", zap.String("digest", digest), zap.Error(err))
	}
	telemetry.LedgerCacheTotal.WithLabelValues("miss").Inc()

	tx, err := c.next.GetTransaction(ctx, digest)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tx); err == nil {
		if err := c.redisClient.Set(ctx, key, data, c.ttl).Err(); err != nil {
			telemetry.Logger.Warn("Ledger cache write failed", zap.String("digest", digest), zap.Error(err))
		}
	}

	return tx, nil
}
