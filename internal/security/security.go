package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/71220903/coredev-finance-flow-sub001/internal/database"
)

// SecurityConfig holds the request hardening knobs.
type SecurityConfig struct {
	MaxInputLength    int           `json:"max_input_length"`
	MaxRequestsPerMin int           `json:"max_requests_per_min"`
	EnableCORS        bool          `json:"enable_cors"`
	AllowedOrigins    []string      `json:"allowed_origins"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	RequestTimeout    time.Duration `json:"request_timeout"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxInputLength:    200,
		MaxRequestsPerMin: 60,
		EnableCORS:        true,
		AllowedOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
		TrustedProxies:    []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		RequestTimeout:    30 * time.Second,
	}
}

// ipLimiterEntry tracks when each per-IP limiter was last used so
// Cleanup can prune idle ones.
type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SecurityMiddleware bundles input validation, auth, security headers,
// and a coarse per-IP limiter that backstops the ratelimit package.
type SecurityMiddleware struct {
	config      SecurityConfig
	ipLimiters  map[string]*ipLimiterEntry
	ipMutex     sync.Mutex
	userService *database.UserService
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{
		config:     config,
		ipLimiters: make(map[string]*ipLimiterEntry),
	}
}

// SetUserService sets the user service used for session validation.
func (sm *SecurityMiddleware) SetUserService(userService *database.UserService) {
	sm.userService = userService
}

// suspiciousFragments are lowercase substrings that mark an input as a
// likely injection attempt.
var suspiciousFragments = []string{
	`<script`, `</script>`, `javascript:`, `onerror=`, `onload=`,
	`union select`, `drop table`, `alter table`,
	`--`, `/*`, `*/`, `xp_`, `sp_`,
}

// ValidateInput rejects inputs that are too long, malformed, or carry
// common injection markers.
func (sm *SecurityMiddleware) ValidateInput(input string) error {
	if len(input) > sm.config.MaxInputLength {
		return fmt.Errorf("input exceeds maximum length of %d characters", sm.config.MaxInputLength)
	}
	if strings.Contains(input, "\x00") {
		return fmt.Errorf("input contains invalid characters")
	}
	if !utf8.ValidString(input) {
		return fmt.Errorf("input contains invalid UTF-8 encoding")
	}

	inputLower := strings.ToLower(input)
	for _, fragment := range suspiciousFragments {
		if strings.Contains(inputLower, fragment) {
			return fmt.Errorf("input contains suspicious patterns")
		}
	}
	return nil
}

// handlePattern matches borrower handles: must start and end with an
// alphanumeric, separators limited to dots, dashes and underscores.
var handlePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*[a-zA-Z0-9]$`)

// ValidateHandle validates a borrower handle used in catalogue queries.
func (sm *SecurityMiddleware) ValidateHandle(handle string) error {
	if handle == "" {
		return fmt.Errorf("handle is required")
	}
	if strings.Contains(handle, "..") || strings.Contains(handle, "--") {
		return fmt.Errorf("invalid handle format")
	}
	if len(handle) > 1 && !handlePattern.MatchString(handle) {
		return fmt.Errorf("invalid handle format")
	}
	return nil
}

var (
	scriptTagPattern = regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`)
	htmlTagPattern   = regexp.MustCompile(`<[^>]+>`)
	whitespaceRun    = regexp.MustCompile(`\s+`)

	htmlEntities = map[string]string{
		"&lt;":   "<",
		"&gt;":   ">",
		"&amp;":  "&",
		"&quot;": "\"",
		"&#x27;": "'",
		"&#39;":  "'",
	}
)

// SanitizeInput strips markup and collapses whitespace. Entity decoding
// runs last so decoded angle brackets cannot reintroduce tags before
// validation sees the result.
func (sm *SecurityMiddleware) SanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	input = scriptTagPattern.ReplaceAllString(input, "")
	input = htmlTagPattern.ReplaceAllString(input, "")
	input = whitespaceRun.ReplaceAllString(input, " ")

	for entity, char := range htmlEntities {
		input = strings.ReplaceAll(input, entity, char)
	}
	return input
}

// RateLimitByIP is a coarse per-IP guard on top of the distributed
// limiter. Burst is half the per-minute budget, with a floor of 5.
func (sm *SecurityMiddleware) RateLimitByIP(c *gin.Context) {
	clientIP := c.ClientIP()
	now := time.Now()

	sm.ipMutex.Lock()
	entry, exists := sm.ipLimiters[clientIP]
	if !exists {
		burst := sm.config.MaxRequestsPerMin / 2
		if burst < 5 {
			burst = 5
		}
		entry = &ipLimiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(sm.config.MaxRequestsPerMin)/60.0), burst),
		}
		sm.ipLimiters[clientIP] = entry
	}
	entry.lastSeen = now
	sm.ipMutex.Unlock()

	if !entry.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded for IP",
			"retry_after": "60",
		})
		return
	}

	c.Next()
}

// RequireAuth validates the bearer token and stores the session identity
// in the request context.
func (sm *SecurityMiddleware) RequireAuth(c *gin.Context) {
	if sm.userService == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": "authentication is not configured",
		})
		return
	}

	token, ok := bearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing bearer token",
		})
		return
	}

	userID, role, err := sm.userService.ValidateSessionToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	c.Set("user_id", userID)
	c.Set("user_role", role)
	c.Next()
}

// OptionalAuth stores the session identity when a valid bearer token is
// present and lets anonymous requests through untouched.
func (sm *SecurityMiddleware) OptionalAuth(c *gin.Context) {
	if sm.userService == nil {
		c.Next()
		return
	}

	if token, ok := bearerToken(c); ok {
		if userID, role, err := sm.userService.ValidateSessionToken(token); err == nil {
			c.Set("user_id", userID)
			c.Set("user_role", role)
		}
	}
	c.Next()
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

// RequireAdmin rejects sessions without the admin role. Must run after
// RequireAuth.
func (sm *SecurityMiddleware) RequireAdmin(c *gin.Context) {
	role, exists := c.Get("user_role")
	if !exists || role != database.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "admin access required",
		})
		return
	}
	c.Next()
}

// SecurityHeaders sets the standard hardening headers on every response.
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "SAMEORIGIN")
	c.Header("X-XSS-Protection", "1; mode=block")
	c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; connect-src 'self'")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Permissions-Policy", "camera=(), microphone=()")

	if c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Next()
}

var allowedContentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// ValidateContentType rejects request bodies with unexpected media types.
// Requests without a Content-Type header pass through.
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType == "" {
		c.Next()
		return
	}

	for _, allowed := range allowedContentTypes {
		if strings.Contains(contentType, allowed) {
			c.Next()
			return
		}
	}

	c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
		"error": "unsupported content type",
	})
}

// RequestTimeout bounds each request by the configured timeout.
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))
	c.Next()
}

// RequestLogging writes an access line per request, skipping the health
// probes that would otherwise dominate the log.
func (sm *SecurityMiddleware) RequestLogging(c *gin.Context) {
	start := time.Now()
	path := c.Request.URL.Path
	if raw := c.Request.URL.RawQuery; raw != "" {
		path = path + "?" + raw
	}

	c.Next()

	statusCode := c.Writer.Status()
	if statusCode < 400 && strings.Contains(path, "/health") {
		return
	}

	attrs := []any{
		"method", c.Request.Method,
		"path", path,
		"status", statusCode,
		"latency_ms", time.Since(start).Milliseconds(),
		"ip", c.ClientIP(),
	}
	if statusCode >= 400 {
		slog.Warn("Request completed with error", attrs...)
	} else {
		slog.Info("Request completed", attrs...)
	}
}

// ValidateSearchQuery sanitizes and validates the free-text query parameter
// on catalogue endpoints, storing the cleaned value in the context.
func (sm *SecurityMiddleware) ValidateSearchQuery(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.Next()
		return
	}

	query = sm.SanitizeInput(query)
	if err := sm.ValidateInput(query); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("query validation failed: %v", err),
		})
		return
	}

	c.Set("sanitized_query", query)
	c.Next()
}

// CORSConfig builds the CORS middleware from the configured origins.
func (sm *SecurityMiddleware) CORSConfig() gin.HandlerFunc {
	if !sm.config.EnableCORS {
		return func(c *gin.Context) { c.Next() }
	}

	return cors.New(cors.Config{
		AllowOrigins:     sm.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Cache-Control", "X-Requested-With"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// Cleanup starts the hourly prune of idle per-IP limiters.
func (sm *SecurityMiddleware) Cleanup() {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			sm.pruneIdleLimiters(2 * time.Hour)
		}
	}()
}

func (sm *SecurityMiddleware) pruneIdleLimiters(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)

	sm.ipMutex.Lock()
	defer sm.ipMutex.Unlock()
	for ip, entry := range sm.ipLimiters {
		if entry.lastSeen.Before(cutoff) {
			delete(sm.ipLimiters, ip)
		}
	}
}
