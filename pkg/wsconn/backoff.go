package wsconn

import (
	"math/rand"
	"time"
)

// Backoff implements exponential backoff with jitter for reconnect timers.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{
		initial: initial,
		max:     max,
		current: initial,
	}
}

// Next returns the delay to wait before the next attempt, with ±20% jitter,
// and advances the schedule. The un-jittered delay doubles each call up to
// the max.
func (b *Backoff) Next() time.Duration {
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	delay := time.Duration(float64(b.current) + jitter)

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}

	return delay
}

// Reset returns the schedule to the initial delay. Called on every
// successful open.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// Current returns the next un-jittered delay.
func (b *Backoff) Current() time.Duration {
	return b.current
}
