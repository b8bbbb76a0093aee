// Package breaker provides a time-based circuit breaker shared by every
// caller of an unstable backend. Once tripped, the breaker stays open for the
// requested duration and callers skip the backend entirely.
package breaker

import (
	"sync"
	"time"
)

// Breaker is safe for concurrent use. The zero value is closed and uses the
// wall clock.
type Breaker struct {
	mu    sync.Mutex
	until time.Time
	now   func() time.Time
}

// New returns a closed breaker using the wall clock.
func New() *Breaker {
	return &Breaker{}
}

// NewWithClock returns a closed breaker that reads time from now.
func NewWithClock(now func() time.Time) *Breaker {
	return &Breaker{now: now}
}

func (b *Breaker) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

// Trip opens the breaker for d. A trip never shortens an existing window.
func (b *Breaker) Trip(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until := b.clock().Add(d)
	if until.After(b.until) {
		b.until = until
	}
}

// IsOpen reports whether the breaker is still inside a cooldown window.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock().Before(b.until)
}

// Remaining returns how long the breaker stays open, or zero when closed.
func (b *Breaker) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d := b.until.Sub(b.clock()); d > 0 {
		return d
	}
	return 0
}

// Reset closes the breaker immediately.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.until = time.Time{}
	b.mu.Unlock()
}
