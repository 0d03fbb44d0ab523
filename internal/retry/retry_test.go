package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fast = Config{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Jitter: time.Millisecond}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoWrapsLastError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	notFound := errors.New("404")
	cfg := fast
	cfg.Retryable = func(err error) bool { return !errors.Is(err, notFound) }
	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return notFound
	})
	if err != notFound || calls != 1 {
		t.Fatalf("expected one call returning the raw error, got calls=%d err=%v", calls, err)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	cause := errors.New("bad credentials")
	err := Do(context.Background(), fast, func() error {
		calls++
		return Permanent(cause)
	})
	if calls != 1 || !errors.Is(err, cause) || !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected permanent failure after one call, got calls=%d err=%v", calls, err)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{Attempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Jitter: time.Millisecond}
	calls := 0
	err := Do(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected cancellation after one call, got calls=%d err=%v", calls, err)
	}
}
