package middleware

import (
	"bufio"
	"compress/gzip"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // Minimum response size to compress (bytes)
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ContentTypes     []string // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024, // Compress responses >= 1KB
		CompressionLevel: 6,    // Balanced compression level
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
			"application/xml",
			"text/xml",
		},
	}
}

// CompressionMiddleware provides gzip compression for HTTP responses
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool // Pool of gzip writers for better performance
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	level := config.CompressionLevel
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}

	return &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
		pool: sync.Pool{
			New: func() interface{} {
				gz, _ := gzip.NewWriterLevel(io.Discard, level)
				return gz
			},
		},
	}
}

// Handler returns a Gin middleware that gzips responses for clients that
// accept it. Responses below MinSize pass through uncompressed.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cm.clientAcceptsGzip(c.Request) {
			c.Next()
			return
		}

		gz := cm.getGzipWriter(io.Discard)

		gzw := &gzipResponseWriter{
			ResponseWriter: c.Writer,
			gzipWriter:     gz,
			middleware:     cm,
			minSize:        cm.config.MinSize,
		}
		c.Writer = gzw

		c.Next()

		gzw.finish()
		cm.returnGzipWriter(gz)
	}
}

// clientAcceptsGzip checks if the client accepts gzip compression
func (cm *CompressionMiddleware) clientAcceptsGzip(r *http.Request) bool {
	acceptEncoding := r.Header.Get("Accept-Encoding")
	return strings.Contains(acceptEncoding, "gzip")
}

// shouldCompress checks if the content type should be compressed
func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// getGzipWriter gets a gzip writer from the pool
func (cm *CompressionMiddleware) getGzipWriter(w io.Writer) *gzip.Writer {
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(w)
	return gz
}

// returnGzipWriter returns a gzip writer to the pool
func (cm *CompressionMiddleware) returnGzipWriter(gz *gzip.Writer) {
	cm.pool.Put(gz)
}

// gzipResponseWriter buffers the response body and decides at the end
// whether compressing it is worth it
type gzipResponseWriter struct {
	gin.ResponseWriter
	gzipWriter *gzip.Writer
	middleware *CompressionMiddleware
	minSize    int
	buf        []byte
	finished   bool
}

// Write buffers response data until the handler completes
func (gzw *gzipResponseWriter) Write(data []byte) (int, error) {
	gzw.buf = append(gzw.buf, data...)
	return len(data), nil
}

// WriteString buffers string data until the handler completes
func (gzw *gzipResponseWriter) WriteString(s string) (int, error) {
	gzw.buf = append(gzw.buf, s...)
	return len(s), nil
}

// finish flushes the buffered body, compressed when it pays off
func (gzw *gzipResponseWriter) finish() {
	if gzw.finished {
		return
	}
	gzw.finished = true

	originalSize := int64(len(gzw.buf))
	contentType := gzw.Header().Get("Content-Type")

	if len(gzw.buf) < gzw.minSize || !gzw.middleware.shouldCompress(contentType) {
		gzw.ResponseWriter.Write(gzw.buf)
		gzw.middleware.stats.RecordRequest(originalSize, originalSize, false)
		return
	}

	gzw.Header().Set("Content-Encoding", "gzip")
	gzw.Header().Set("Vary", "Accept-Encoding")
	gzw.Header().Del("Content-Length")

	countingWriter := &countingResponseWriter{inner: gzw.ResponseWriter}
	gzw.gzipWriter.Reset(countingWriter)
	gzw.gzipWriter.Write(gzw.buf)
	gzw.gzipWriter.Close()

	gzw.middleware.stats.RecordRequest(originalSize, countingWriter.written, true)
}

// Hijack hijacks the connection (for WebSocket upgrades, etc.)
func (gzw *gzipResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := gzw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("response writer does not implement http.Hijacker")
}

// countingResponseWriter tracks how many compressed bytes went out
type countingResponseWriter struct {
	inner   io.Writer
	written int64
}

func (c *countingResponseWriter) Write(p []byte) (int, error) {
	n, err := c.inner.Write(p)
	c.written += int64(n)
	return n, err
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	mutex              sync.RWMutex
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize

	if compressed {
		cs.CompressedRequests++
		cs.CompressedBytes += compressedSize
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	compressionRatio := float64(0)
	if cs.TotalBytes > 0 {
		compressionRatio = float64(cs.CompressedBytes) / float64(cs.TotalBytes)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"compressed_bytes":    cs.CompressedBytes,
		"compression_ratio":   compressionRatio,
		"compression_savings": 1.0 - compressionRatio,
		"compression_enabled": cs.TotalRequests > 0 && cs.CompressedRequests > 0,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
