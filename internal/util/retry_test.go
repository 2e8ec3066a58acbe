package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{Attempts: 3, Backoff: time.Millisecond}, func(int) error {
		calls++
		if calls < 2 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if calls != 2 {
		t.Fatalf("expect 2 calls, got %d", calls)
	}
}

func TestRetryPermanent(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	err := Retry(context.Background(), Policy{Attempts: 5, Backoff: time.Millisecond}, func(int) error {
		calls++
		return Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expect sentinel, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error must not be retried, got %d calls", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{Attempts: 3}, func(attempt int) error {
		calls++
		return errors.New("still failing")
	})
	if err == nil || calls != 3 {
		t.Fatalf("expect 3 failing calls, got %d (%v)", calls, err)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, Policy{Attempts: 3}, func(int) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect context cancelled, got %v", err)
	}
}
