package service

import "time"

// Backoff hands out doubling delays between Min and Max. It is owned by a
// single goroutine.
type Backoff struct {
	Min time.Duration
	Max time.Duration

	next time.Duration
}

func NewBackoff(min, max time.Duration) *Backoff {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	return &Backoff{Min: min, Max: max}
}

// Next returns the delay to wait now.
func (b *Backoff) Next() time.Duration {
	if b.next == 0 {
		b.next = b.Min
	}
	d := b.next
	b.next *= 2
	if b.next > b.Max {
		b.next = b.Max
	}
	return d
}

// Reset brings the next delay back to Min.
func (b *Backoff) Reset() {
	b.next = 0
}
