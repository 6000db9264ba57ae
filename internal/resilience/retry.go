package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/71220903/coredev-finance-flow-sub001/internal/errors"
)

// RetryConfig controls the backoff schedule. ShouldRetry decides per error
// whether another attempt is worthwhile; nil means retry everything.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
	ShouldRetry   func(error) bool
}

// DefaultRetryConfig retries transient upstream failures three times with
// exponential backoff starting at 100ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
		ShouldRetry:   errors.IsRetryableError,
	}
}

// RetryableFunc is one attempt of an operation under retry.
type RetryableFunc func() error

// RetryWithConfig runs fn until it succeeds, exhausts its attempts, or
// returns an error ShouldRetry rejects. Context cancellation wins over
// any pending backoff delay.
func RetryWithConfig(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if config.ShouldRetry != nil && !config.ShouldRetry(lastErr) {
			break
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(config, attempt)):
		}
	}

	return lastErr
}

// Retry runs fn under the default schedule.
func Retry(ctx context.Context, fn RetryableFunc) error {
	return RetryWithConfig(ctx, DefaultRetryConfig(), fn)
}

// RetryWithBackoff runs fn under the default schedule with a custom
// attempt count and initial delay.
func RetryWithBackoff(ctx context.Context, maxAttempts int, initialDelay time.Duration, fn RetryableFunc) error {
	config := DefaultRetryConfig()
	config.MaxAttempts = maxAttempts
	config.InitialDelay = initialDelay
	return RetryWithConfig(ctx, config, fn)
}

// backoffDelay is initial_delay * factor^attempt capped at MaxDelay,
// plus up to 10% jitter to spread out synchronized retries.
func backoffDelay(config RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if config.JitterEnabled && delay >= 10 {
		delay += time.Duration(rand.Int63n(int64(delay / 10)))
	}
	return delay
}
