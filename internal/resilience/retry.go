// Package resilience provides retry and circuit breaker patterns for
// unreliable upstream calls.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls classified retry behavior. Rate-limit failures back
// off exponentially with jitter; malformed-output failures back off linearly;
// permanent failures propagate immediately.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// RateLimitBase is the base delay for the rate-limit class, doubling
	// per attempt. Default: 3s.
	RateLimitBase time.Duration

	// RateLimitMultiplier scales the rate-limit backoff after each attempt.
	// Default: 2.0.
	RateLimitMultiplier float64

	// JitterFraction adds random jitter to rate-limit backoff as a fraction
	// of the computed delay, to avoid synchronized retry storms across
	// concurrently processing messages. Default: 0.2.
	JitterFraction float64

	// MaxBackoff caps any computed delay. Default: 30s.
	MaxBackoff time.Duration

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, class ErrorClass, err error)
}

// DefaultRetryConfig returns the standard policy for upstream API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		RateLimitBase:       3 * time.Second,
		RateLimitMultiplier: 2.0,
		JitterFraction:      0.2,
		MaxBackoff:          30 * time.Second,
	}
}

// Do executes one upstream operation with classified retries. The operation
// name is used for logging only. Context cancellation stops retries
// immediately; the last error propagates after exhausting attempts.
func Do(ctx context.Context, cfg RetryConfig, operation string, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for operations that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}

		class := Classify(lastErr)
		if class == ClassPermanent {
			return zero, lastErr
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		delay := backoffFor(class, attempt, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, class, lastErr)
		} else {
			zap.L().Warn("retrying operation",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", cfg.MaxAttempts),
				zap.String("class", class.String()),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RateLimitBase <= 0 {
		cfg.RateLimitBase = 3 * time.Second
	}
	if cfg.RateLimitMultiplier <= 0 {
		cfg.RateLimitMultiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return cfg
}

// backoffFor computes the sleep before retrying attempt (1-based).
func backoffFor(class ErrorClass, attempt int, cfg RetryConfig) time.Duration {
	var delay float64
	switch class {
	case ClassMalformedOutput:
		// Not load-related: linear 1s, 2s, 3s.
		delay = float64(attempt) * float64(time.Second)
	default:
		delay = float64(cfg.RateLimitBase) * math.Pow(cfg.RateLimitMultiplier, float64(attempt-1))
		if cfg.JitterFraction > 0 {
			jitterRange := delay * cfg.JitterFraction
			delay += (rand.Float64()*2 - 1) * jitterRange
		}
	}

	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
