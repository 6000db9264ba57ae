package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/71220903/coredev-finance-flow-sub001/internal/monitoring"
)

func TestSetGetDelete(t *testing.T) {
	c := NewCache(time.Minute)
	t.Cleanup(c.Stop)

	c.Set("a", []byte("payload"))

	data, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, []byte("payload"), data)

	c.Delete("a")
	_, found = c.Get("a")
	assert.False(t, found)
}

func TestExpiredEntriesReadAsMisses(t *testing.T) {
	c := NewCache(time.Millisecond)
	t.Cleanup(c.Stop)

	c.Set("a", []byte("payload"))
	time.Sleep(5 * time.Millisecond)

	_, found := c.Get("a")
	assert.False(t, found)
	assert.Equal(t, 0, c.Size(), "expired entry is evicted on read")
}

func TestClearEmptiesTheCache(t *testing.T) {
	c := NewCache(time.Minute)
	t.Cleanup(c.Stop)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	require.Equal(t, 2, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestStats(t *testing.T) {
	c := NewCache(time.Minute)
	t.Cleanup(c.Stop)

	c.Set("a", []byte("1"))

	stats := c.Stats()
	assert.Equal(t, 1, stats["total_items"])
	assert.Equal(t, 1, stats["active_items"])
	assert.InDelta(t, 60.0, stats["ttl_seconds"].(float64), 0.01)
}

func newCachedRouter(t *testing.T) (*Cache, *monitoring.Metrics, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c := NewCache(time.Minute)
	t.Cleanup(c.Stop)
	metrics := monitoring.NewMetrics()

	calls := 0
	r := gin.New()
	r.Use(c.Middleware(metrics))
	r.GET("/markets", func(ctx *gin.Context) {
		calls++
		ctx.JSON(http.StatusOK, gin.H{"serving": calls})
	})
	r.GET("/uncached", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return c, metrics, r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareServesSecondRequestFromCache(t *testing.T) {
	c, metrics, r := newCachedRouter(t)

	first := get(r, "/markets")
	require.Equal(t, http.StatusOK, first.Code)

	second := get(r, "/markets")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String(), "replayed from cache")

	assert.Equal(t, 1, c.Size())
	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats["cache_hits"])
	assert.Equal(t, int64(1), stats["cache_misses"])
}

func TestMiddlewareKeysIncludeQueryString(t *testing.T) {
	c, _, r := newCachedRouter(t)

	get(r, "/markets?state=ACTIVE")
	get(r, "/markets?state=FUNDING")

	assert.Equal(t, 2, c.Size(), "each filter combination gets its own entry")
}

func TestMiddlewareIgnoresUncacheablePaths(t *testing.T) {
	c, metrics, r := newCachedRouter(t)

	get(r, "/uncached")
	get(r, "/uncached")

	assert.Equal(t, 0, c.Size())
	stats := metrics.GetStats()
	assert.Equal(t, int64(0), stats["cache_hits"])
	assert.Equal(t, int64(0), stats["cache_misses"])
}
