package llm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds how provider calls are retried. Exponential backoff
// with jitter; zero values fall back to the defaults.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     4,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.2,
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt))
	if base > float64(p.MaxBackoff) {
		base = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		base += base * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(base)
}

// Retry runs fn until it succeeds, the retry budget is exhausted, or ctx
// is done. The last error is returned.
func Retry(ctx context.Context, p RetryPolicy, fn func() error) error {
	if p.BackoffFactor == 0 {
		p = DefaultRetryPolicy()
	}
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt < p.MaxRetries {
			select {
			case <-time.After(p.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
