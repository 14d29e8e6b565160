// Package ratelimit bounds the rate of outbound calls with a sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pollInterval caps how long a waiter sleeps before re-checking the window.
const pollInterval = 100 * time.Millisecond

// Limiter admits at most maxCalls acquisitions in any window-long interval.
// It is safe for concurrent use; waiters are not served in any particular order.
type Limiter struct {
	maxCalls int
	window   time.Duration

	mu    sync.Mutex
	calls []time.Time // grant timestamps, oldest first
	now   func() time.Time
}

// New creates a limiter allowing maxCalls per window.
func New(maxCalls int, window time.Duration) *Limiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		calls:    make([]time.Time, 0, maxCalls),
		now:      time.Now,
	}
}

// tryAcquire grants a slot if one is free. Otherwise it returns how long
// until the oldest recorded call leaves the window.
func (l *Limiter) tryAcquire() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	l.calls = l.calls[i:]

	if len(l.calls) < l.maxCalls {
		l.calls = append(l.calls, now)
		return true, 0
	}
	return false, l.calls[0].Add(l.window).Sub(now)
}

// Acquire blocks until a slot is granted. A positive timeout bounds the wait;
// zero or negative waits until ctx is done. It returns false when the timeout
// elapses or ctx is cancelled first.
func (l *Limiter) Acquire(ctx context.Context, timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		granted, wait := l.tryAcquire()
		if granted {
			return true
		}

		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return false
			}
			wait = min(wait, remaining)
		}
		wait = min(max(wait, time.Millisecond), pollInterval)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// Wait blocks until a slot is granted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.Acquire(ctx, 0) {
		return nil
	}
	return ctx.Err()
}

// InFlight returns the number of grants still inside the window.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	n := 0
	for _, ts := range l.calls {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
