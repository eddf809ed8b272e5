// Package retry provides exponential backoff for the client's opt-in
// dial retries.  Nothing in a running game session is ever retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// PermanentError marks a failure that another attempt cannot fix, such
// as the server refusing the join.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff retries an operation with doubling, jittered delays.
type Backoff struct {
	InitialDelay time.Duration // default 1s
	MaxDelay     time.Duration // default 10s
	// MaxAttempts is the total number of tries including the first;
	// anything below 1 means a single try.
	MaxAttempts int
	// OnRetry is called before each wait with the attempt that just
	// failed, its error and the upcoming delay.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Attempts returns a Backoff that makes at most n tries in total.
func Attempts(n int) *Backoff {
	if n < 1 {
		n = 1
	}
	return &Backoff{InitialDelay: time.Second, MaxDelay: 10 * time.Second, MaxAttempts: n}
}

// Do calls fn until it succeeds, returns a permanent error, runs out of
// attempts or ctx ends.  attempt is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	delay := b.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	attempts := max(b.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}
		if attempt >= attempts {
			if attempts == 1 {
				return err
			}
			return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
		}

		wait := jitter(delay)
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-t.C:
		}

		delay = min(delay*2, maxDelay)
	}
}

// jitter spreads d by ±25%, never going below a millisecond.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) / 4
	j := time.Duration(float64(d) + rand.Float64()*2*spread - spread)
	return max(j, time.Millisecond)
}
