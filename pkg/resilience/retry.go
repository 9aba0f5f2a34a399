package resilience

import (
	"context"
	"time"
)

// RetryPolicy is the one retry loop used across the pipeline: MCP connect,
// browser navigation, screenshot capture. Attempt numbers passed to Backoff
// start at 1. A nil Retryable retries every error; a nil Backoff retries
// immediately.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(error) bool
}

// LinearBackoff grows the delay by step per attempt: step, 2*step, 3*step.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// ExpBackoff doubles the delay each attempt starting from base, capped at
// max: base, 2*base, 4*base, ... never exceeding max.
func ExpBackoff(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// Do runs op until it succeeds, the policy is exhausted, an error is deemed
// non-retryable, or the context ends. The last error is returned; context
// cancellation during a backoff sleep surfaces the last operation error,
// not the context error, so callers see what actually failed.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}
		last = op(ctx)
		if last == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(last) {
			return last
		}
		if attempt == attempts {
			break
		}
		if p.Backoff != nil {
			if !sleep(ctx, p.Backoff(attempt)) {
				return last
			}
		}
	}
	return last
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
