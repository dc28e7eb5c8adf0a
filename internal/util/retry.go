package util

import (
	"context"
	"errors"
	"time"
)

// maxRetryDelay caps the exponential backoff and server-requested delays.
const maxRetryDelay = 10 * time.Second

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// delayError carries a server-requested delay, e.g. from Retry-After.
type delayError struct {
	err   error
	delay time.Duration
}

func (e *delayError) Error() string { return e.err.Error() }
func (e *delayError) Unwrap() error { return e.err }

// RetryAfter wraps err so Retry waits d (capped) before the next attempt
// instead of its own backoff.
func RetryAfter(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &delayError{err: err, delay: d}
}

// Retry calls fn up to maxAttempts times, doubling the delay from baseDelay
// after each failure. Errors wrapped with Permanent end the loop and are
// returned unwrapped. Cancelling ctx aborts the wait between attempts.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	backoff := baseDelay
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= maxAttempts {
			return err
		}

		wait := backoff
		var de *delayError
		if errors.As(err, &de) && de.delay > 0 {
			wait = de.delay
		}
		if wait > maxRetryDelay {
			wait = maxRetryDelay
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff *= 2
	}
}
