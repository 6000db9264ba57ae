package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// ConnectionPool wraps a tuned http.Transport with a concurrency cap
// and circuit breaker protection. Both upstream adapters (the chain
// indexer and the rates oracle) go through one of these, so a stalled
// upstream cannot pile up unbounded in-flight requests.
type ConnectionPool struct {
	maxIdle     int
	maxActive   int
	idleTimeout time.Duration

	circuitBreaker *CircuitBreaker
	client         *http.Client
	transport      *http.Transport

	// Counting semaphore bounding in-flight requests.
	slots chan struct{}

	inFlight     int64
	totalServed  int64
	totalRefused int64
}

// NewConnectionPool creates a new connection pool with circuit breaker
func NewConnectionPool(maxIdle, maxActive int, idleTimeout time.Duration, cb *CircuitBreaker) *ConnectionPool {
	transport := &http.Transport{
		MaxIdleConns:          maxIdle,
		MaxConnsPerHost:       maxActive,
		MaxIdleConnsPerHost:   maxIdle / 2,
		IdleConnTimeout:       idleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &ConnectionPool{
		maxIdle:        maxIdle,
		maxActive:      maxActive,
		idleTimeout:    idleTimeout,
		circuitBreaker: cb,
		transport:      transport,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		slots: make(chan struct{}, maxActive),
	}
}

// DoRequest executes an HTTP request through the pool. Transport errors
// trip the circuit breaker; a response, whatever its status code, does
// not, since the adapters decide what a bad status means for them.
func (cp *ConnectionPool) DoRequest(ctx context.Context, method, url string, headers map[string]string) (*http.Response, error) {
	select {
	case cp.slots <- struct{}{}:
	default:
		atomic.AddInt64(&cp.totalRefused, 1)
		return nil, fmt.Errorf("connection pool exhausted: %d in-flight requests", cp.maxActive)
	}
	defer func() { <-cp.slots }()

	atomic.AddInt64(&cp.inFlight, 1)
	defer atomic.AddInt64(&cp.inFlight, -1)

	var resp *http.Response
	err := cp.circuitBreaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return err
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		start := time.Now()
		resp, err = cp.client.Do(req)
		duration := time.Since(start)

		if err != nil {
			slog.Warn("Upstream request failed", "url", url, "error", err, "duration_ms", duration.Milliseconds())
			return err
		}

		slog.Debug("Upstream request completed", "url", url, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())
		return nil
	})
	if err != nil {
		return nil, err
	}

	atomic.AddInt64(&cp.totalServed, 1)
	return resp, nil
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"in_flight_requests":    atomic.LoadInt64(&cp.inFlight),
		"total_served":          atomic.LoadInt64(&cp.totalServed),
		"total_refused":         atomic.LoadInt64(&cp.totalRefused),
		"max_idle":              cp.maxIdle,
		"max_active":            cp.maxActive,
		"idle_timeout_ms":       cp.idleTimeout.Milliseconds(),
		"circuit_breaker_state": cp.circuitBreaker.State(),
	}
}

// Close drops the transport's idle connections.
func (cp *ConnectionPool) Close() error {
	cp.transport.CloseIdleConnections()
	slog.Info("Connection pool closed")
	return nil
}
