// Package resilience hardens calls to evidence providers and the graph
// service: bounded retry with jittered backoff, transient-error
// classification, and per-service circuit breakers.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls Do. Zero fields take defaults.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	JitterFraction float64
	// ShouldRetry classifies errors as retryable. Defaults to IsTransient.
	ShouldRetry func(error) bool
	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

func (c RetryConfig) applyDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 300 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.25
	}
	if c.JitterFraction > 1 {
		c.JitterFraction = 1
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	return c
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx is done.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.applyDefaults()
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !cfg.ShouldRetry(lastErr) || attempt == cfg.MaxAttempts {
			return lastErr
		}
		backoff := computeBackoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, backoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

func computeBackoff(cfg RetryConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if cfg.JitterFraction > 0 {
		delta := backoff * cfg.JitterFraction
		backoff = backoff - delta + rand.Float64()*2*delta
	}
	return time.Duration(backoff)
}

// RetryLogger returns an OnRetry callback that warns through the global
// logger, tagged with the service and operation being retried.
func RetryLogger(service, operation string) func(int, error, time.Duration) {
	return func(attempt int, err error, backoff time.Duration) {
		zap.L().Warn("retrying after transient failure",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
	}
}
