package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/71220903/coredev-finance-flow-sub001/internal/database"
)

func stampedOK(c *gin.Context, payload gin.H) {
	payload["timestamp"] = time.Now().Format(time.RFC3339)
	c.JSON(http.StatusOK, payload)
}

// HandleRateLimitStatus reports the budgets that apply to the caller.
// Admins see their scoring quota as unlimited.
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		limits := gin.H{
			"ip_per_minute": gin.H{
				"limit":  rl.config.IPLimitPerMin,
				"period": "1 minute",
			},
			"scoring_per_day": gin.H{
				"limit":  rl.config.ScoringLimitPerDay,
				"period": "24 hours",
			},
		}

		status := gin.H{
			"ip":     c.ClientIP(),
			"limits": limits,
		}

		if userID, exists := c.Get("user_id"); exists {
			if userIDStr, ok := userID.(string); ok {
				status["user_id"] = userIDStr
				if role, _ := c.Get("user_role"); role == database.RoleAdmin {
					limits["scoring_per_day"] = "unlimited"
				}
			}
		}

		stampedOK(c, status)
	}
}

// HandleAdminRateLimits aggregates key counts, limiter health, and the
// rate limit counters into one admin view.
func (rl *RateLimiter) HandleAdminRateLimits() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyCount, err := rl.GetKeyCount(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get key count"})
			return
		}

		var counters map[string]interface{}
		if rl.metrics != nil {
			counters = rl.metrics.GetRateLimitStats()
		}

		stampedOK(c, gin.H{
			"total_keys":    keyCount,
			"limiter_stats": rl.GetStats(),
			"metrics":       counters,
		})
	}
}

// HandleAdminResetRateLimit clears a user's scoring quota.
func (rl *RateLimiter) HandleAdminResetRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userID")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user ID is required"})
			return
		}

		if err := rl.ResetUserQuota(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to reset rate limit",
				"details": err.Error(),
			})
			return
		}

		stampedOK(c, gin.H{
			"message": "rate limit reset successfully",
			"user_id": userID,
		})
	}
}

// HandleAdminInvalidateUser drops every rate limit key for a user.
func (rl *RateLimiter) HandleAdminInvalidateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userID")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user ID is required"})
			return
		}

		if err := rl.InvalidateUser(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to invalidate user rate limits",
				"details": err.Error(),
			})
			return
		}

		stampedOK(c, gin.H{
			"message": "user rate limits invalidated successfully",
			"user_id": userID,
		})
	}
}

// HandleAdminInvalidateIP drops every rate limit key for a source IP.
func (rl *RateLimiter) HandleAdminInvalidateIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Param("ip")
		if ip == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "IP address is required"})
			return
		}

		if err := rl.InvalidateIP(c.Request.Context(), ip); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to invalidate IP rate limits",
				"details": err.Error(),
			})
			return
		}

		stampedOK(c, gin.H{
			"message": "IP rate limits invalidated successfully",
			"ip":      ip,
		})
	}
}

// HandleAdminRateLimitMetrics exposes the raw rate limit counters.
func (rl *RateLimiter) HandleAdminRateLimitMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.metrics == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics not configured"})
			return
		}

		stampedOK(c, gin.H{
			"rate_limit_metrics": rl.metrics.GetRateLimitStats(),
		})
	}
}
