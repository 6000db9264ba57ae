package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/71220903/coredev-finance-flow-sub001/internal/monitoring"
)

// Config holds the per-scope rate limit budgets.
type Config struct {
	IPLimitPerMin      int // anonymous requests per source IP per minute
	ScoringLimitPerDay int // scoring requests per authenticated user per day
	BurstMultiplier    int // burst capacity as a multiple of the base limit
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		IPLimitPerMin:      60,
		ScoringLimitPerDay: 200,
		BurstMultiplier:    2,
	}
}

// Result is the outcome of a single rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// fallbackEntry pairs an in-memory token bucket with its last access time
// so idle buckets can be pruned.
type fallbackEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces limits against Redis when the broker is reachable
// and degrades to per-process token buckets when it is not. Fallback mode
// is weaker (each instance counts independently) but keeps the API usable.
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics

	fallbackLimiters map[string]*fallbackEntry
	fallbackMutex    sync.RWMutex
}

// NewRateLimiter builds a limiter over the given Redis client. A disabled
// client is accepted and routes every check through the in-memory path.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*fallbackEntry),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
	} else {
		slog.Warn("Redis unavailable, rate limiting runs per-process only")
	}

	go rl.pruneFallbackLimiters()

	return rl
}

// AllowIP checks the per-minute budget for a source IP.
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	return rl.allow(ctx, "ratelimit:ip:"+ip, rl.config.IPLimitPerMin, time.Minute)
}

// AllowUser checks the daily scoring budget for an authenticated user.
func (rl *RateLimiter) AllowUser(ctx context.Context, userID string) (*Result, error) {
	return rl.allow(ctx, "ratelimit:user:"+userID+":day", rl.config.ScoringLimitPerDay, 24*time.Hour)
}

func (rl *RateLimiter) allow(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	if rl.redisLimiter != nil && rl.redisClient.IsEnabled() {
		result, err := rl.allowRedis(ctx, key, limit, period)
		if err == nil {
			return result, nil
		}
		slog.Warn("Redis rate limit check failed, using in-memory bucket", "key", key, "error", err)
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitRedisError()
		}
		return rl.allowFallback(key, limit, period)
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key, limit, period)
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit,
		Burst:  limit,
		Period: period,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

func (rl *RateLimiter) allowFallback(key string, limit int, period time.Duration) (*Result, error) {
	now := time.Now()

	rl.fallbackMutex.Lock()
	entry, ok := rl.fallbackLimiters[key]
	if !ok {
		burst := limit * rl.config.BurstMultiplier
		if burst < 5 {
			burst = 5
		}
		entry = &fallbackEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(limit)/period.Seconds()), burst),
		}
		rl.fallbackLimiters[key] = entry
	}
	entry.lastSeen = now
	rl.fallbackMutex.Unlock()

	allowed := entry.limiter.Allow()

	remaining := int(entry.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(period),
	}
	if !allowed {
		result.RetryAfter = time.Until(result.ResetAt)
	}
	return result, nil
}

// pruneFallbackLimiters drops buckets that have been idle for two hours.
func (rl *RateLimiter) pruneFallbackLimiters() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-2 * time.Hour)

		rl.fallbackMutex.Lock()
		before := len(rl.fallbackLimiters)
		for key, entry := range rl.fallbackLimiters {
			if entry.lastSeen.Before(cutoff) {
				delete(rl.fallbackLimiters, key)
			}
		}
		pruned := before - len(rl.fallbackLimiters)
		rl.fallbackMutex.Unlock()

		if pruned > 0 {
			slog.Info("Pruned idle fallback rate limiters", "pruned", pruned, "remaining", before-pruned)
		}
	}
}

// GetStats reports limiter health for the admin status endpoint.
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.RLock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.RUnlock()

	stats := map[string]interface{}{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"fallback_limiters": fallbackCount,
	}
	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
	}
	return stats
}
