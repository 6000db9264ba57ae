package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/71220903/coredev-finance-flow-sub001/internal/errors"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
	})

	for i := 0; i < 3; i++ {
		err := cb.Call(func() error { return assert.AnError })
		assert.ErrorIs(t, err, assert.AnError)
	}
	assert.Equal(t, StateOpen, cb.State())

	// While open, calls fail fast without invoking the function.
	called := false
	err := cb.Call(func() error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)

	var cbErr *CircuitBreakerError
	assert.ErrorAs(t, err, &cbErr)
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Nanosecond,
		SuccessThreshold: 2,
	})

	require.Error(t, cb.Call(func() error { return assert.AnError }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(time.Millisecond)

	// First success moves to half-open, second closes the circuit.
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	require.Error(t, cb.Call(func() error { return assert.AnError }))
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Call(func() error { return nil }))
}

func TestCircuitBreakerRegistry(t *testing.T) {
	registry := NewCircuitBreakerRegistry()

	first := registry.GetOrCreate("indexer", CircuitBreakerConfig{})
	second := registry.GetOrCreate("indexer", CircuitBreakerConfig{})
	assert.Same(t, first, second)

	got, ok := registry.Get("indexer")
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = registry.Get("missing")
	assert.False(t, ok)

	stats := registry.GetStats()
	assert.Contains(t, stats, "indexer")
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.NewDataSourceError("indexer", assert.AnError)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		return errors.NewValidationError("bad input")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		return errors.NewTimeoutError("upstream timed out", assert.AnError)
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, func() error {
		return errors.NewDataSourceError("indexer", assert.AnError)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDegradationLevelsFollowErrorRate(t *testing.T) {
	dm := NewDegradationManager(DefaultDegradationConfig())
	dm.RegisterService("oracle", nil)

	// 20 successes keep the service healthy.
	for i := 0; i < 20; i++ {
		dm.RecordRequest("oracle", true)
	}
	health, ok := dm.GetServiceHealth("oracle")
	require.True(t, ok)
	assert.Equal(t, LevelNormal, health.Level)

	// Push the error rate past the degraded threshold (10%).
	for i := 0; i < 3; i++ {
		dm.RecordError("oracle", assert.AnError)
	}
	health, _ = dm.GetServiceHealth("oracle")
	assert.Equal(t, LevelDegraded, health.Level)

	// Keep failing until the emergency threshold (50%) is crossed.
	for i := 0; i < 25; i++ {
		dm.RecordError("oracle", assert.AnError)
	}
	health, _ = dm.GetServiceHealth("oracle")
	assert.Equal(t, LevelEmergency, health.Level)
	assert.False(t, dm.IsServiceAvailable("oracle"))
}

func TestDegradationRecordsUnknownServiceSilently(t *testing.T) {
	dm := NewDegradationManager(DefaultDegradationConfig())

	dm.RecordError("unregistered", assert.AnError)
	dm.RecordRequest("unregistered", true)

	_, ok := dm.GetServiceHealth("unregistered")
	assert.False(t, ok)
}

func TestResetServiceClearsDegradation(t *testing.T) {
	dm := NewDegradationManager(DefaultDegradationConfig())
	dm.RegisterService("indexer", nil)

	dm.RecordError("indexer", assert.AnError)
	health, _ := dm.GetServiceHealth("indexer")
	require.Equal(t, LevelEmergency, health.Level)

	dm.ResetService("indexer")
	health, _ = dm.GetServiceHealth("indexer")
	assert.Equal(t, LevelNormal, health.Level)
	assert.Zero(t, health.ErrorCount)
}

func TestThrottleFactorScalesWithLevel(t *testing.T) {
	dm := NewDegradationManager(DefaultDegradationConfig())
	dm.RegisterService("indexer", nil)

	assert.Equal(t, 1.0, dm.GetThrottleFactor("indexer"))
	assert.False(t, dm.ShouldThrottleRequests("indexer"))

	dm.RecordError("indexer", assert.AnError)
	assert.True(t, dm.ShouldThrottleRequests("indexer"))
	assert.Less(t, dm.GetThrottleFactor("indexer"), 1.0)
}
