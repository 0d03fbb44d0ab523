// Package retry retries a single operation with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

type Config struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    time.Duration
	// Retryable reports whether err is worth another attempt. Nil retries every error.
	Retryable func(error) bool
}

// ErrPermanent marks an error that must not be retried regardless of Retryable.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() []error {
	return []error{e.err, ErrPermanent}
}

func Do(ctx context.Context, config Config, fn func() error) error {
	attempts := config.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	baseDelay := config.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	maxDelay := config.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	jitter := config.Jitter
	if jitter <= 0 {
		jitter = 100 * time.Millisecond
	}

	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrPermanent) {
			return err
		}
		if config.Retryable != nil && !config.Retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		sleep := delay + time.Duration(rand.Int63n(int64(jitter)))
		if sleep > maxDelay {
			sleep = maxDelay
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("retry failed after %d attempts: %w", attempts, lastErr)
}
