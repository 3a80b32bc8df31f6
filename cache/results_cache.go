package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"poll-decision-backend/results"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ResultsCache keeps closed-poll results in Redis as JSON. Closed results are
// immutable, so entries are only ever replaced with identical values.
type ResultsCache struct {
	client RedisClient
	ttl    time.Duration
	log    *zap.Logger
}

// NewResultsCache builds the Redis level. A zero ttl stores without expiry;
// otherwise up to 10% jitter is added so entries do not lapse together.
func NewResultsCache(client RedisClient, ttl time.Duration, log *zap.Logger) *ResultsCache {
	return &ResultsCache{client: client, ttl: ttl, log: log}
}

func resultsKey(pollID uint) string {
	return fmt.Sprintf("poll:%d:results", pollID)
}

func (c *ResultsCache) Get(ctx context.Context, pollID uint) (*results.Results, bool) {
	data, err := c.client.Get(ctx, resultsKey(pollID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("results cache read failed", zap.Uint("poll_id", pollID), zap.Error(err))
		}
		return nil, false
	}
	var r results.Results
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		c.log.Warn("results cache entry corrupt", zap.Uint("poll_id", pollID), zap.Error(err))
		return nil, false
	}
	return &r, true
}

func (c *ResultsCache) Put(ctx context.Context, r *results.Results) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	expiration := c.ttl
	if expiration > 0 {
		if tenth := int64(expiration / 10); tenth > 0 {
			expiration += time.Duration(rand.Int63n(tenth))
		}
	}
	return c.client.Set(ctx, resultsKey(r.PollID), string(data), expiration).Err()
}

// Invalidate drops a cached entry, used when a closed poll is discarded.
func (c *ResultsCache) Invalidate(ctx context.Context, pollID uint) error {
	return c.client.Del(ctx, resultsKey(pollID)).Err()
}
