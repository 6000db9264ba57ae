package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/71220903/coredev-finance-flow-sub001/internal/database"
)

// scoringPaths are the compute-heavy endpoints that carry a per-user
// daily quota on top of the IP limit.
var scoringPaths = map[string]bool{
	"/trust/score":     true,
	"/risk/assess":     true,
	"/pricing/suggest": true,
}

func setLimitHeaders(c *gin.Context, prefix string, result *Result) {
	c.Header("X-RateLimit-"+prefix+"Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-"+prefix+"Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-"+prefix+"Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func rejectLimited(c *gin.Context, result *Result, body gin.H) {
	retryAfter := int(result.RetryAfter.Seconds())
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	body["retry_after"] = retryAfter
	body["reset_at"] = result.ResetAt.Unix()
	c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
}

// IPRateLimitMiddleware enforces the per-minute budget on every request
// from a source IP. Limiter failures never block traffic.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		setLimitHeaders(c, "", result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}
			rejectLimited(c, result, gin.H{
				"error":   "rate limit exceeded for IP",
				"message": fmt.Sprintf("You have exceeded the rate limit of %d requests per minute", result.Limit),
			})
			return
		}

		c.Next()
	}
}

// UserRateLimitMiddleware enforces the daily scoring quota for
// authenticated users on the scoring endpoints. Admins bypass the quota,
// and anonymous requests only carry the IP limit.
func (rl *RateLimiter) UserRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !scoringPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		userID, exists := c.Get("user_id")
		if !exists {
			c.Next()
			return
		}
		userIDStr, ok := userID.(string)
		if !ok {
			slog.Warn("Invalid user ID type in context")
			c.Next()
			return
		}

		if role, _ := c.Get("user_role"); role == database.RoleAdmin {
			c.Header("X-RateLimit-User-Limit", "unlimited")
			c.Header("X-RateLimit-User-Remaining", "unlimited")
			c.Next()
			return
		}

		result, err := rl.AllowUser(c.Request.Context(), userIDStr)
		if err != nil {
			slog.Error("User rate limit check failed", "user_id", userIDStr, "error", err)
			c.Next()
			return
		}

		setLimitHeaders(c, "User-", result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitUserBlock()
			}
			rejectLimited(c, result, gin.H{
				"error":              "daily scoring limit exceeded",
				"message":            fmt.Sprintf("You have used all %d scoring requests for today", result.Limit),
				"remaining_requests": result.Remaining,
			})
			return
		}

		c.Next()
	}
}

// EndpointRateLimitMiddleware applies a per-minute limit scoped to a
// single endpoint, keyed by source IP.
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		key := fmt.Sprintf("ratelimit:endpoint:%s:%s", endpoint, ip)

		result, err := rl.allow(c.Request.Context(), key, limit, time.Minute)
		if err != nil {
			slog.Error("Endpoint rate limit check failed", "endpoint", endpoint, "ip", ip, "error", err)
			c.Next()
			return
		}

		setLimitHeaders(c, "Endpoint-", result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitEndpoint(endpoint)
			}
			rejectLimited(c, result, gin.H{
				"error":   fmt.Sprintf("rate limit exceeded for endpoint: %s", endpoint),
				"message": fmt.Sprintf("You have exceeded the rate limit of %d requests per minute for this endpoint", result.Limit),
			})
			return
		}

		c.Next()
	}
}
