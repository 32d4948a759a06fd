package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/barangay-insights/internal/domain/insight"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/config"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Address:      mr.Addr(),
		PoolSize:     5,
		MinIdleConns: 1,
		MaxRetries:   1,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	client, err := NewRedisClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewRedisClient(t *testing.T) {
	t.Run("missing address", func(t *testing.T) {
		_, err := NewRedisClient(context.Background(), config.RedisConfig{}, zaptest.NewLogger(t))
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		addr := mr.Addr()
		mr.Close()

		_, err = NewRedisClient(context.Background(), config.RedisConfig{Address: addr, DialTimeout: 200 * time.Millisecond}, zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestRedisCacheOperations(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedisCache(client, zaptest.NewLogger(t))
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		var out map[string]int
		err := c.GetJSON(ctx, "insights:missing", &out)
		var notFound ErrCacheKeyNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "insights:missing", notFound.Key)
	})

	t.Run("set with ttl", func(t *testing.T) {
		require.NoError(t, c.SetJSON(ctx, "insights:k", "v", time.Minute))
		var got string
		require.NoError(t, c.GetJSON(ctx, "insights:k", &got))
		assert.Equal(t, "v", got)

		mr.FastForward(2 * time.Minute)
		assert.ErrorAs(t, c.GetJSON(ctx, "insights:k", &got), &ErrCacheKeyNotFound{})
	})

	t.Run("json round trip", func(t *testing.T) {
		in := map[string]int{"a": 1}
		require.NoError(t, c.SetJSON(ctx, "insights:j", in, 0))

		var out map[string]int
		require.NoError(t, c.GetJSON(ctx, "insights:j", &out))
		assert.Equal(t, in, out)
		assert.Equal(t, time.Duration(0), mr.TTL("insights:j"), "zero ttl never expires")
	})

	t.Run("unencodable value", func(t *testing.T) {
		assert.Error(t, c.SetJSON(ctx, "insights:ch", make(chan int), 0))
		assert.False(t, mr.Exists("insights:ch"))
	})

	t.Run("corrupt json", func(t *testing.T) {
		require.NoError(t, mr.Set("insights:bad", "{not json"))
		var out map[string]int
		assert.Error(t, c.GetJSON(ctx, "insights:bad", &out))
	})
}

func TestInsightCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	ic := NewInsightCache(NewRedisCache(client, zaptest.NewLogger(t)))
	ctx := context.Background()

	r, err := ic.Get(ctx, "insights:analysis:abc")
	require.NoError(t, err)
	assert.Nil(t, r, "miss is not an error")

	want := &insight.Result{
		Trend:            insight.TrendUpward,
		PercentageChange: "+4%",
		Analysis:         "More requests.",
		Prediction:       "Still rising.",
		Insights:         []string{"March peak"},
		Recommendations:  []string{"Add a second clerk"},
	}
	require.NoError(t, ic.Set(ctx, "insights:analysis:abc", want, 10*time.Minute))
	assert.Equal(t, 10*time.Minute, mr.TTL("insights:analysis:abc"))

	got, err := ic.Get(ctx, "insights:analysis:abc")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, mr.Set("insights:analysis:stale", `{"trend":"sideways"}`))
	got, err = ic.Get(ctx, "insights:analysis:stale")
	require.NoError(t, err)
	assert.Nil(t, got, "invalid stored result is ignored")
}

func TestRedisRateLimiter(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl := NewRedisRateLimiter(client, zaptest.NewLogger(t)).(*redisRateLimiter)
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "session-1", 2, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "session-1", 2, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "third event in the window is rejected")

	remaining, err := rl.Remaining(ctx, "session-1", 2, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining, "rejected events are not counted")

	ok, err = rl.Allow(ctx, "session-2", 2, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	now = now.Add(61 * time.Minute)
	remaining, err = rl.Remaining(ctx, "session-1", 2, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining, "window slid past old events")

	remaining, err = rl.Remaining(ctx, "session-2", 2, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}
