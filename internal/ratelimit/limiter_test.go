package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/71220903/coredev-finance-flow-sub001/internal/monitoring"
)

func newFallbackLimiter(config Config) *RateLimiter {
	redisClient := &RedisClient{enabled: false}
	return NewRateLimiter(redisClient, config, monitoring.NewMetrics())
}

func TestFallbackLimiterBlocksAfterBurst(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:      10,
		ScoringLimitPerDay: 5,
		BurstMultiplier:    1,
	})

	ctx := context.Background()
	key := "test:block"

	// Burst of 10 tokens over a long period, so no meaningful refill
	allowed := 0
	for i := 0; i < 15; i++ {
		result, err := limiter.allow(ctx, key, 10, 24*time.Hour)
		require.NoError(t, err)
		if result.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed, "burst capacity bounds the initial allowance")

	result, err := limiter.allow(ctx, key, 10, 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestAllowIPAndAllowUserUseIndependentKeys(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:      3,
		ScoringLimitPerDay: 3,
		BurstMultiplier:    1,
	})

	ctx := context.Background()

	// Exhaust the IP bucket (burst is clamped to a minimum of 5)
	for i := 0; i < 5; i++ {
		result, err := limiter.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "ip request %d", i+1)
	}
	result, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// Other IPs and user quotas are unaffected
	result, err = limiter.AllowIP(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.AllowUser(ctx, "user-abc")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 60, config.IPLimitPerMin)
	assert.Equal(t, 200, config.ScoringLimitPerDay)
	assert.Equal(t, 2, config.BurstMultiplier)
}

func TestGetStatsInFallbackMode(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = limiter.AllowIP(ctx, fmt.Sprintf("10.0.0.%d", i))
	}

	stats := limiter.GetStats()
	assert.False(t, stats["redis_enabled"].(bool))
	assert.Equal(t, 3, stats["fallback_limiters"].(int))
}

func TestConcurrentAllowIsSafe(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())
	ctx := context.Background()

	done := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		go func(n int) {
			for j := 0; j < 10; j++ {
				_, err := limiter.allow(ctx, fmt.Sprintf("concurrent:%d", n%5), 100, time.Minute)
				assert.NoError(t, err)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 50; i++ {
		<-done
	}
}
