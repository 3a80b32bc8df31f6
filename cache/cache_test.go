package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"poll-decision-backend/results"
	"poll-decision-backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResultsCacheRoundTrip(t *testing.T) {
	fake := testutil.NewFakeRedis()
	c := NewResultsCache(fake, 0, zap.NewNop())
	ctx := context.Background()

	_, ok := c.Get(ctx, 9)
	assert.False(t, ok)

	in := &results.Results{
		PollID:   9,
		PollType: "poll",
		Closed:   true,
		Options:  []results.OptionResult{{ID: 1, Name: "A", Score: 2, VoterIDs: []uint{3, 4}}},
	}
	require.NoError(t, c.Put(ctx, in))
	assert.Equal(t, time.Duration(0), fake.TTLs["poll:9:results"])

	out, ok := c.Get(ctx, 9)
	require.True(t, ok)
	assert.Equal(t, in, out)

	require.NoError(t, c.Invalidate(ctx, 9))
	_, ok = c.Get(ctx, 9)
	assert.False(t, ok)
}

func TestResultsCacheTTLJitter(t *testing.T) {
	fake := testutil.NewFakeRedis()
	c := NewResultsCache(fake, time.Hour, zap.NewNop())
	require.NoError(t, c.Put(context.Background(), &results.Results{PollID: 1}))

	ttl := fake.TTLs["poll:1:results"]
	assert.GreaterOrEqual(t, ttl, time.Hour)
	assert.Less(t, ttl, time.Hour+6*time.Minute)
}

func TestResultsCacheTreatsFailuresAsMiss(t *testing.T) {
	fake := testutil.NewFakeRedis()
	c := NewResultsCache(fake, 0, zap.NewNop())
	fake.Strings["poll:5:results"] = "{not json"

	_, ok := c.Get(context.Background(), 5)
	assert.False(t, ok)

	fake.Fail = errors.New("connection refused")
	_, ok = c.Get(context.Background(), 5)
	assert.False(t, ok)
	assert.Error(t, c.Put(context.Background(), &results.Results{PollID: 5}))
}

func TestTokenBucketRateLimiter(t *testing.T) {
	fake := testutil.NewFakeRedis()
	var gotKeys []string
	remaining := 2
	fake.EvalFn = func(keys []string, args ...interface{}) (interface{}, error) {
		gotKeys = append(gotKeys, keys...)
		if remaining == 0 {
			return int64(0), nil
		}
		remaining--
		return int64(1), nil
	}
	l := NewTokenBucketRateLimiter(fake, "api", 1, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "rate_limit:api:10.0.0.1", gotKeys[0])

	_, err = NewTokenBucketRateLimiter(nil, "api", 1, 1).Allow(ctx, "x")
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
}

func TestLocalLockerSerializesSameName(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "poll:1:participant:2", time.Second, func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.locks)
}

func TestLocalLockerPropagatesErrorsAndCancellation(t *testing.T) {
	l := NewLocalLocker()
	boom := errors.New("boom")
	assert.ErrorIs(t, l.WithLock(context.Background(), "a", 0, func() error { return boom }), boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := l.WithLock(ctx, "a", 0, func() error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
