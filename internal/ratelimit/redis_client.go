package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisDialTimeout  = 5 * time.Second
	redisReadTimeout  = 3 * time.Second
	redisWriteTimeout = 3 * time.Second
	redisPoolSize     = 10
	redisMinIdle      = 2
	redisPoolTimeout  = 4 * time.Second
	redisMaxRetries   = 3
)

// RedisClient wraps a go-redis connection so the limiter can keep working
// when the broker is absent. A disabled client is a valid value: every
// consumer checks IsEnabled before touching the underlying connection.
type RedisClient struct {
	client  *redis.Client
	enabled bool
	addr    string
}

// NewRedisClient dials the broker at addr. An empty addr or a failed ping
// yields a disabled client so rate limiting can fall back to the in-memory
// token buckets instead of blocking startup.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	if addr == "" {
		slog.Warn("Redis address not configured, rate limiting uses in-memory fallback")
		return &RedisClient{enabled: false}, nil
	}

	slog.Info("Connecting to Redis", "addr", addr, "db", db)

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   redisMaxRetries,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisReadTimeout,
		WriteTimeout: redisWriteTimeout,
		PoolSize:     redisPoolSize,
		MinIdleConns: redisMinIdle,
		PoolTimeout:  redisPoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Redis ping failed, rate limiting uses in-memory fallback", "addr", addr, "error", err)
		return &RedisClient{enabled: false, addr: addr}, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{client: client, enabled: true, addr: addr}, nil
}

// GetClient returns the underlying connection. Nil when disabled.
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// IsEnabled reports whether the broker connection is live.
func (r *RedisClient) IsEnabled() bool {
	return r.enabled
}

// HealthCheck pings the broker.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if !r.enabled {
		return fmt.Errorf("redis is disabled")
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool. Safe on a disabled client.
func (r *RedisClient) Close() error {
	if !r.enabled || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// GetPoolStats reports connection pool counters for the admin rate-limit
// status endpoint.
func (r *RedisClient) GetPoolStats() map[string]interface{} {
	if !r.enabled || r.client == nil {
		return map[string]interface{}{"enabled": false}
	}

	stats := r.client.PoolStats()
	return map[string]interface{}{
		"enabled":     true,
		"addr":        r.addr,
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}
