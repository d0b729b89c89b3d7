package apperr

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RetryConfig configures retry behavior for outbound calls.
type RetryConfig struct {
	MaxRetries   int           // retries after the first attempt (0 = no retries)
	InitialDelay time.Duration // delay before first retry
	MaxDelay     time.Duration // ceiling for backoff growth
	Multiplier   float64       // backoff growth factor
	Jitter       float64       // random jitter fraction (0-1)
}

// DefaultRetryConfig returns the standard policy for page fetches.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Retrier executes functions with bounded retries and exponential backoff.
type Retrier struct {
	config RetryConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewRetrier creates a retrier with the given configuration.
func NewRetrier(config RetryConfig) *Retrier {
	return &Retrier{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do runs fn until it succeeds, exhausts retries, hits a non-retryable
// error, or the context ends. Returns the last error.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := r.config.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt >= r.config.MaxRetries || !IsRetryable(lastErr) {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(r.jittered(delay)):
		}

		delay = time.Duration(float64(delay) * r.config.Multiplier)
		if delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}
	return lastErr
}

func (r *Retrier) jittered(d time.Duration) time.Duration {
	if r.config.Jitter <= 0 {
		return d
	}
	r.mu.Lock()
	f := r.rng.Float64()
	r.mu.Unlock()
	spread := r.config.Jitter * float64(d)
	return time.Duration(float64(d) - spread + 2*spread*f)
}

// DoWithResult runs a value-returning function through the retrier.
func DoWithResult[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		var ferr error
		out, ferr = fn(ctx)
		return ferr
	})
	return out, err
}
