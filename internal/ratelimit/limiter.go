// Package ratelimit provides sliding-window admission control for upstream
// model calls.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter keeps a sliding log of call timestamps and admits a call only
// while fewer than maxCalls fall within the trailing window.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter admitting maxCalls per window.
func New(maxCalls int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		maxCalls: maxCalls,
		window:   window,
		calls:    make([]time.Time, 0, maxCalls),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanMakeCall reports whether a call would be admitted right now. It does
// not record anything.
func (l *Limiter) CanMakeCall() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countLocked(l.now()) < l.maxCalls
}

// RecordCall appends the current time to the log.
func (l *Limiter) RecordCall() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, l.now())
}

// Allow checks and records under a single lock so two concurrent callers
// cannot both take the last slot.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.countLocked(now) >= l.maxCalls {
		return false
	}
	l.calls = append(l.calls, now)
	return true
}

// Remaining returns how many calls would still be admitted in the current window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	left := l.maxCalls - l.countLocked(l.now())
	if left < 0 {
		return 0
	}
	return left
}

// MaxCalls returns the configured ceiling.
func (l *Limiter) MaxCalls() int {
	return l.maxCalls
}

// Window returns the configured window.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// countLocked drops entries that left the window and returns what remains.
// Timestamps are appended in order so the expired prefix is contiguous.
func (l *Limiter) countLocked(now time.Time) int {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
	return len(l.calls)
}
