package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// scanBatchSize bounds each SCAN page when walking rate limit keys.
const scanBatchSize = 100

// InvalidateUser drops every rate limit key for a user. Admins use this
// to reset a scoring quota.
func (rl *RateLimiter) InvalidateUser(ctx context.Context, userID string) error {
	if !rl.redisClient.IsEnabled() {
		rl.dropFallbackKey("ratelimit:user:" + userID + ":day")
		slog.Info("Invalidated user rate limits (in-memory)", "user_id", userID)
		return nil
	}
	return rl.deleteByPattern(ctx, fmt.Sprintf("ratelimit:user:%s:*", userID))
}

// InvalidateIP drops every rate limit key for a source IP.
func (rl *RateLimiter) InvalidateIP(ctx context.Context, ip string) error {
	if !rl.redisClient.IsEnabled() {
		rl.dropFallbackKey("ratelimit:ip:" + ip)
		slog.Info("Invalidated IP rate limits (in-memory)", "ip", ip)
		return nil
	}
	return rl.deleteByPattern(ctx, fmt.Sprintf("ratelimit:ip:%s*", ip))
}

// ResetUserQuota resets a user's daily scoring quota.
func (rl *RateLimiter) ResetUserQuota(ctx context.Context, userID string) error {
	slog.Info("Resetting scoring quota", "user_id", userID)
	return rl.InvalidateUser(ctx, userID)
}

// InvalidateAll drops every rate limit key. Emergency use only.
func (rl *RateLimiter) InvalidateAll(ctx context.Context) error {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		count := len(rl.fallbackLimiters)
		rl.fallbackLimiters = make(map[string]*fallbackEntry)
		rl.fallbackMutex.Unlock()

		slog.Warn("Invalidated all rate limits (in-memory)", "count", count)
		return nil
	}

	slog.Warn("Invalidating ALL rate limits")
	return rl.deleteByPattern(ctx, "ratelimit:*")
}

// BumpVersion increments the policy version for a scope so clients start
// a fresh limit window. Requires Redis; the in-memory fallback has no
// shared version to bump.
func (rl *RateLimiter) BumpVersion(ctx context.Context, scope string) error {
	if !rl.redisClient.IsEnabled() {
		return fmt.Errorf("version bumping requires Redis")
	}

	result := rl.redisClient.GetClient().Incr(ctx, "ratelimit:version:"+scope)
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to bump version: %w", err)
	}

	slog.Info("Bumped rate limit version", "scope", scope, "version", result.Val())
	return nil
}

// GetVersion reads the current policy version for a scope. Missing keys
// read as version 0.
func (rl *RateLimiter) GetVersion(ctx context.Context, scope string) (int64, error) {
	if !rl.redisClient.IsEnabled() {
		return 0, fmt.Errorf("version tracking requires Redis")
	}

	result := rl.redisClient.GetClient().Get(ctx, "ratelimit:version:"+scope)
	if result.Err() == redis.Nil {
		return 0, nil
	}
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}

	version, err := result.Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to parse version: %w", err)
	}
	return version, nil
}

// GetKeyCount counts the live rate limit keys.
func (rl *RateLimiter) GetKeyCount(ctx context.Context) (int, error) {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.RLock()
		defer rl.fallbackMutex.RUnlock()
		return len(rl.fallbackLimiters), nil
	}

	count := 0
	err := rl.scanKeys(ctx, "ratelimit:*", func(keys []string) error {
		count += len(keys)
		return nil
	})
	return count, err
}

func (rl *RateLimiter) dropFallbackKey(key string) {
	rl.fallbackMutex.Lock()
	delete(rl.fallbackLimiters, key)
	rl.fallbackMutex.Unlock()
}

// scanKeys walks all keys matching pattern in SCAN pages, invoking fn
// per page. SCAN avoids the full-keyspace block that KEYS would take.
func (rl *RateLimiter) scanKeys(ctx context.Context, pattern string, fn func([]string) error) error {
	client := rl.redisClient.GetClient()

	var cursor uint64
	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = nextCursor
		if cursor == 0 {
			return nil
		}
	}
}

func (rl *RateLimiter) deleteByPattern(ctx context.Context, pattern string) error {
	client := rl.redisClient.GetClient()

	deletedCount := 0
	err := rl.scanKeys(ctx, pattern, func(keys []string) error {
		deleted, err := client.Del(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
		deletedCount += int(deleted)
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("Deleted rate limit keys by pattern", "pattern", pattern, "count", deletedCount)
	return nil
}
