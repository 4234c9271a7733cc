package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures exponential-backoff retry of a single collaborator
// call. Label identifies what's being retried (a mutation provider's name,
// a peer's hostname) so OnRetry and the final wrapped error can be told
// apart across a process juggling several retriers at once.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, adds randomness
	Label        string
	OnRetry      func(label string, attempt int, err error)
}

// DefaultRetryConfig returns sensible defaults for retrying an LLM mutation
// call or a federation peer request.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retry executes fn with exponential backoff, retrying up to MaxAttempts
// times. The final failure is wrapped with cfg.Label, if set, so a caller
// logging the returned error can tell which collaborator exhausted its
// retries without threading that context through fn itself.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if cfg.OnRetry != nil {
				cfg.OnRetry(cfg.Label, attempt+1, err)
			}
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay, cfg.Jitter)):
			}
			delay = nextDelay(delay, cfg)
		}
	}
	if cfg.Label != "" {
		return fmt.Errorf("%s: %w", cfg.Label, lastErr)
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}
