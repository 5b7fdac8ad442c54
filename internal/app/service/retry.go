package service

import (
	"context"
	"errors"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Clock returns the current time.
type Clock func() time.Time

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const minRateLimitWait = time.Second

// RetryPolicy governs remote calls. A rate limit waits exactly the requested
// time and retries without counting against Attempts. Transient errors are
// retried until Attempts calls have failed. Anything else fails at once.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Sleep    Sleeper
}

// Do runs op under the policy and returns the last error.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	failures := 0
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		var rl *RateLimitError
		if errors.As(err, &rl) {
			wait := rl.RetryAfter
			if wait < minRateLimitWait {
				wait = minRateLimitWait
			}
			if serr := sleep(ctx, wait); serr != nil {
				return err
			}
			continue
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return err
		}

		failures++
		if failures >= attempts {
			return err
		}
		if serr := sleep(ctx, p.Delay); serr != nil {
			return err
		}
	}
}
