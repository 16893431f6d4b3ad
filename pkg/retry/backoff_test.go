package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func constantPause() BackoffConfig {
	return BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1.0,
		MaxRetries:      2,
	}
}

func TestWithRetrySucceedsWithinBudget(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, constantPause())

	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	calls := 0
	sentinel := errors.New("still down")
	err := WithRetry(context.Background(), func() error {
		calls++
		return sentinel
	}, constantPause())

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("final error must wrap the last failure, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestWithRetryStopError(t *testing.T) {
	calls := 0
	sentinel := errors.New("fatal")
	err := WithRetry(context.Background(), func() error {
		calls++
		return Stop(sentinel)
	}, constantPause())

	if calls != 1 {
		t.Errorf("StopError must halt retries, got %d calls", calls)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("expected unwrapped sentinel, got %v", err)
	}
	if IsStopError(err) {
		t.Error("returned error should be unwrapped from StopError")
	}
}

func TestWithRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	}, BackoffConfig{
		InitialInterval: time.Minute,
		MaxInterval:     time.Minute,
		Multiplier:      1.0,
		MaxRetries:      2,
	})

	if calls != 1 {
		t.Errorf("cancellation must prevent further attempts, got %d calls", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestExponentialBackoffConstantPause(t *testing.T) {
	delay := ExponentialBackoff(BackoffConfig{
		InitialInterval: time.Second,
		MaxInterval:     time.Second,
		Multiplier:      1.0,
	})

	for attempt := 1; attempt <= 3; attempt++ {
		if d := delay(attempt); d != time.Second {
			t.Errorf("attempt %d: expected constant 1s pause, got %v", attempt, d)
		}
	}
}
