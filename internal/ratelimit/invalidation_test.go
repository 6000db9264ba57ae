package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidateUserResetsDailyQuota(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:      60,
		ScoringLimitPerDay: 3,
		BurstMultiplier:    1,
	})

	ctx := context.Background()
	userID := "user-123"

	// Exhaust the quota (burst clamps to a minimum of 5)
	for i := 0; i < 5; i++ {
		result, err := limiter.AllowUser(ctx, userID)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d", i+1)
	}
	result, err := limiter.AllowUser(ctx, userID)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	require.NoError(t, limiter.InvalidateUser(ctx, userID))

	// Fresh quota after invalidation
	result, err = limiter.AllowUser(ctx, userID)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestInvalidateIPResetsOnlyThatIP(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:      3,
		ScoringLimitPerDay: 200,
		BurstMultiplier:    1,
	})

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.AllowIP(ctx, "192.0.2.1")
		require.NoError(t, err)
		_, err = limiter.AllowIP(ctx, "192.0.2.2")
		require.NoError(t, err)
	}

	result, err := limiter.AllowIP(ctx, "192.0.2.1")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, limiter.InvalidateIP(ctx, "192.0.2.1"))

	result, err = limiter.AllowIP(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.True(t, result.Allowed, "invalidated IP starts fresh")

	result, err = limiter.AllowIP(ctx, "192.0.2.2")
	require.NoError(t, err)
	assert.False(t, result.Allowed, "other IPs keep their exhausted state")
}

func TestResetUserQuota(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())
	ctx := context.Background()

	_, err := limiter.AllowUser(ctx, "user-reset")
	require.NoError(t, err)

	assert.NoError(t, limiter.ResetUserQuota(ctx, "user-reset"))
}

func TestInvalidateAllClearsFallbackState(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())
	ctx := context.Background()

	_, _ = limiter.AllowIP(ctx, "10.1.1.1")
	_, _ = limiter.AllowUser(ctx, "user-a")

	count, err := limiter.GetKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, limiter.InvalidateAll(ctx))

	count, err = limiter.GetKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestVersionOpsRequireRedis(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())
	ctx := context.Background()

	assert.Error(t, limiter.BumpVersion(ctx, "global"))

	_, err := limiter.GetVersion(ctx, "global")
	assert.Error(t, err)
}
