// Package backoff implements the capped doubling delay shared by the
// ingester and poller loops.
package backoff

import (
	"context"
	"time"
)

const (
	DefaultBase = time.Second
	DefaultCap  = 30 * time.Second
)

// Backoff yields base, 2*base, 4*base, ... capped at Cap.
// The zero value uses DefaultBase and DefaultCap. Not safe for concurrent use.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration

	attempts uint32
}

// New returns a Backoff with explicit bounds.
func New(base, ceiling time.Duration) *Backoff {
	return &Backoff{Base: base, Cap: ceiling}
}

// Next returns the delay for the next consecutive failure and records it.
func (b *Backoff) Next() time.Duration {
	b.attempts++
	return Delay(b.base(), b.ceiling(), b.attempts)
}

// Attempts is the number of failures since the last Reset.
func (b *Backoff) Attempts() uint32 {
	return b.attempts
}

// Reset returns the backoff to its first step.
func (b *Backoff) Reset() {
	b.attempts = 0
}

func (b *Backoff) base() time.Duration {
	if b.Base <= 0 {
		return DefaultBase
	}
	return b.Base
}

func (b *Backoff) ceiling() time.Duration {
	if b.Cap <= 0 {
		return DefaultCap
	}
	return b.Cap
}

// Delay is min(base * 2^(attempt-1), ceiling) for attempt >= 1.
func Delay(base, ceiling time.Duration, attempt uint32) time.Duration {
	if attempt == 0 {
		attempt = 1
	}
	d := base
	for i := uint32(1); i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
