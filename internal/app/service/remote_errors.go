package service

import (
	"errors"
	"fmt"
	"time"
)

// ErrMessageGone is returned by a Messenger when the target message no longer
// exists on the platform.
var ErrMessageGone = errors.New("message no longer exists")

// RateLimitError carries the wait the platform asked for.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// TransientError marks network-class failures: timeouts, resets, 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return "transient remote failure"
	}
	return "transient remote failure: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying after a short pause.
// Rate limits count as transient.
func IsTransient(err error) bool {
	var t *TransientError
	if errors.As(err, &t) {
		return true
	}
	var rl *RateLimitError
	return errors.As(err, &rl)
}
