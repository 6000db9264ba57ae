package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

const nonceKey = "csp-nonce"

// GenerateNonce returns a fresh random nonce for CSP script/style sources.
func GenerateNonce() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// GetNonce returns the nonce stored by CSPMiddleware, or "" outside of it.
func GetNonce(c *gin.Context) string {
	if v, exists := c.Get(nonceKey); exists {
		if nonce, ok := v.(string); ok {
			return nonce
		}
	}
	return ""
}

func buildCSPPolicy(nonce string) string {
	directives := []string{
		"default-src 'self'",
		"script-src 'self' 'nonce-" + nonce + "'",
		"style-src 'self' 'nonce-" + nonce + "' 'unsafe-inline'",
		"img-src 'self' data: https:",
		"font-src 'self' data:",
		"connect-src 'self'",
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}
	return strings.Join(directives, "; ")
}

// CSPMiddleware issues a per-request nonce and sets the Content-Security-Policy
// header. Used on the Swagger UI routes, which serve actual HTML.
func CSPMiddleware() gin.HandlerFunc {
	reportURI := ""
	if os.Getenv("ENABLE_CSP_REPORT") == "true" {
		reportURI = os.Getenv("CSP_REPORT_URI")
	}

	return func(c *gin.Context) {
		nonce, err := GenerateNonce()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		c.Set(nonceKey, nonce)

		policy := buildCSPPolicy(nonce)
		c.Header("Content-Security-Policy", policy)
		if reportURI != "" {
			c.Header("Content-Security-Policy-Report-Only", policy+"; report-uri "+reportURI)
		}

		c.Next()
	}
}
