package monitoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// slowRequestThreshold marks requests worth a dedicated performance log
// line on top of the usual access log.
const slowRequestThreshold = 5 * time.Second

// scoringBodyLimit is the largest request body the scoring endpoints
// should ever legitimately receive.
const scoringBodyLimit = 10_000

// MonitoringMiddleware records request counters, response times, and the
// per-request access log line.
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.IncrementRequest()

		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.RecordResponseTime(duration)
		metrics.RecordRequestByStatus(statusCode)
		if statusCode >= 400 {
			metrics.IncrementError()
		}

		logger.RequestLogger(method, path, ip, userAgent, statusCode, duration)

		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, method, path, ip, statusCode)
		}

		if duration > slowRequestThreshold {
			logger.PerformanceLogger("slow_request", duration.Seconds(), "seconds")
		}
		if statusCode >= 500 {
			logger.SystemLogger("server_error", fmt.Sprintf("Status %d for %s %s", statusCode, method, path))
		}
	}
}

// SecurityMonitoringMiddleware logs requests that look like probing:
// injection markers in the query string, scanner user agents, or
// oversized scoring payloads. It observes and logs; blocking stays with
// the security middleware.
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		details := make(map[string]interface{})

		if rawQuery := c.Request.URL.RawQuery; hasSQLInjectionMarker(rawQuery) {
			details["type"] = "potential_sql_injection"
			details["query"] = rawQuery
		}

		if isScannerUserAgent(c.GetHeader("User-Agent")) {
			details["type"] = "suspicious_user_agent"
			details["user_agent"] = c.GetHeader("User-Agent")
		}

		if c.Request.Method == "POST" && isScoringPath(c.Request.URL.Path) {
			if size := c.Request.ContentLength; size > scoringBodyLimit {
				details["type"] = "large_request_body"
				details["size_bytes"] = size
			}
		}

		if len(details) > 0 {
			logger.SecurityLogger("suspicious_activity_detected", c.ClientIP(), c.GetHeader("User-Agent"), details)
		}

		c.Next()
	}
}

func isScoringPath(path string) bool {
	return path == "/trust/score" || path == "/risk/assess"
}

var sqlInjectionMarkers = []string{
	"union select",
	"union all",
	"select * from",
	"drop table",
	"delete from",
	"update users set",
	"';--",
	"/*",
	"*/",
	" xp_",
	" sp_",
}

func hasSQLInjectionMarker(query string) bool {
	lowered := strings.ToLower(query)
	for _, marker := range sqlInjectionMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

var scannerUserAgents = []string{
	"sqlmap",
	"nmap",
	"masscan",
	"zmap",
	"dirbuster",
	"gobuster",
	"nikto",
	"acunetix",
	"openvas",
	"rapid7",
	"qualys",
	"nessus",
}

func isScannerUserAgent(userAgent string) bool {
	lowered := strings.ToLower(userAgent)
	for _, agent := range scannerUserAgents {
		if strings.Contains(lowered, agent) {
			return true
		}
	}
	return false
}
