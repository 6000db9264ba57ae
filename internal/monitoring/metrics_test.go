package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentileResponseTime(t *testing.T) {
	m := NewMetrics()

	// 1ms..100ms in order
	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}

	assert.Equal(t, 95*time.Millisecond, m.GetPercentileResponseTime(95))
	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 100*time.Millisecond, m.GetPercentileResponseTime(100))
}

func TestPercentileWithNoSamplesIsZero(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, time.Duration(0), m.GetPercentileResponseTime(95))
}

func TestResponseRingKeepsRecentSamples(t *testing.T) {
	m := NewMetrics()

	// Fill the ring with slow samples, then overwrite with fast ones.
	for i := 0; i < responseSampleSize; i++ {
		m.RecordResponseTime(time.Second)
	}
	for i := 0; i < responseSampleSize; i++ {
		m.RecordResponseTime(time.Millisecond)
	}

	assert.Equal(t, time.Millisecond, m.GetPercentileResponseTime(95),
		"old samples should have been evicted")
}

func TestAverageResponseTimeCoversAllSamples(t *testing.T) {
	m := NewMetrics()

	m.RecordResponseTime(10 * time.Millisecond)
	m.RecordResponseTime(30 * time.Millisecond)

	stats := m.GetStats()
	avg, ok := stats["avg_response_time_ms"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 20.0, avg, 0.01)
}

func TestErrorAndCacheRates(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 10; i++ {
		m.IncrementRequest()
	}
	m.IncrementError()
	m.IncrementCacheHit()
	m.IncrementCacheHit()
	m.IncrementCacheHit()
	m.IncrementCacheMiss()

	stats := m.GetStats()
	assert.InDelta(t, 10.0, stats["error_rate_percent"].(float64), 0.01)
	assert.InDelta(t, 75.0, stats["cache_hit_rate_percent"].(float64), 0.01)
}

func TestStatusCodeDistribution(t *testing.T) {
	m := NewMetrics()

	m.RecordRequestByStatus(200)
	m.RecordRequestByStatus(200)
	m.RecordRequestByStatus(429)
	m.RecordRequestByStatus(500)

	dist := m.GetStatusCodeDistribution()
	assert.Equal(t, int64(2), dist[200])
	assert.Equal(t, int64(1), dist[429])
	assert.Equal(t, int64(1), dist[500])
}

func TestExternalAPIStatsTrackErrorRatePerService(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 4; i++ {
		m.RecordExternalAPIRequest("chain-indexer", true)
	}
	m.RecordExternalAPIRequest("chain-indexer", false)
	m.RecordExternalAPIRequest("rates-oracle", true)

	stats := m.GetExternalAPIStats()

	indexer, ok := stats["chain-indexer"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(5), indexer["requests"])
	assert.Equal(t, int64(1), indexer["errors"])
	assert.InDelta(t, 20.0, indexer["error_rate"].(float64), 0.01)

	oracle, ok := stats["rates-oracle"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(0), oracle["errors"])
}

func TestResetClearsCounters(t *testing.T) {
	m := NewMetrics()

	m.IncrementRequest()
	m.IncrementError()
	m.RecordResponseTime(time.Second)
	m.RecordRequestByStatus(500)
	m.RecordExternalAPIRequest("chain-indexer", false)

	m.Reset()

	stats := m.GetStats()
	assert.Equal(t, int64(0), stats["total_requests"])
	assert.Equal(t, int64(0), stats["error_count"])
	assert.Equal(t, time.Duration(0), m.GetPercentileResponseTime(95))
	assert.Empty(t, m.GetStatusCodeDistribution())
	assert.Empty(t, m.GetExternalAPIStats())
}

func TestRateLimitStats(t *testing.T) {
	m := NewMetrics()

	m.IncrementRateLimitIPBlock()
	m.IncrementRateLimitUserBlock()
	m.IncrementRateLimitUserBlock()
	m.IncrementRateLimitFallback()
	m.IncrementRateLimitEndpoint("/trust/score")
	m.IncrementRateLimitEndpoint("/trust/score")

	stats := m.GetRateLimitStats()
	assert.Equal(t, int64(1), stats["ip_blocks"])
	assert.Equal(t, int64(2), stats["user_blocks"])
	assert.Equal(t, int64(1), stats["fallback_count"])

	endpoints, ok := stats["endpoint_blocks"].(map[string]int64)
	require.True(t, ok)
	assert.Equal(t, int64(2), endpoints["/trust/score"])
}

func TestConcurrentRecordingIsSafe(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.IncrementRequest()
				m.RecordResponseTime(time.Millisecond)
				m.RecordRequestByStatus(200)
				m.RecordExternalAPIRequest("chain-indexer", j%10 == 0)
			}
		}()
	}
	wg.Wait()

	stats := m.GetStats()
	assert.Equal(t, int64(2000), stats["total_requests"])
}
