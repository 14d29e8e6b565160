// Package retry runs fallible operations with bounded exponential backoff.
package retry

import (
	"context"
	"time"
)

// Defaults match the upstream client's historical behaviour.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 60 * time.Second
)

// Policy retries an operation up to MaxAttempts times in total.
// The delay after failed attempt n (0-indexed) is min(BaseDelay*2^n, MaxDelay).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool

	// OnRetry, when set, is called before each inter-attempt sleep.
	OnRetry func(attempt int, delay time.Duration, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a policy with the default budget and the given classifier.
func New(retryable func(error) bool) *Policy {
	return &Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Retryable:   retryable,
	}
}

// Delay returns the backoff before the attempt following failed attempt n.
func (p *Policy) Delay(n int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay || d <= 0 {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

// Do runs op until it succeeds, the budget is spent, the error is not
// retryable, or ctx is done. The last error from op is returned unchanged.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
	return err
}

// Run is Do for operations that produce a value.
func Run[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
