package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensOnErrorRate(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:             "test",
		ErrorThreshold:   0.5,
		VolumeThreshold:  4,
		SleepWindow:      50 * time.Millisecond,
		HalfOpenRequests: 2,
		SuccessThreshold: 0.5,
		WindowSize:       time.Second,
		BucketCount:      10,
	})

	if cb.GetState() != "closed" {
		t.Fatalf("expected closed, got %s", cb.GetState())
	}

	boom := errors.New("boom")
	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), func() error { return boom })
	}

	if cb.GetState() != "open" {
		t.Fatalf("expected open after error volume exceeded threshold, got %s", cb.GetState())
	}

	if err := cb.Execute(context.Background(), func() error { return nil }); err == nil {
		t.Fatal("expected rejection while open")
	}
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:             "recover",
		ErrorThreshold:   0.5,
		VolumeThreshold:  2,
		SleepWindow:      20 * time.Millisecond,
		HalfOpenRequests: 2,
		SuccessThreshold: 0.5,
		WindowSize:       time.Second,
		BucketCount:      10,
	})

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func() error { return boom })
	}
	if cb.GetState() != "open" {
		t.Fatalf("expected open, got %s", cb.GetState())
	}

	time.Sleep(30 * time.Millisecond)
	if !cb.CanExecute() {
		t.Fatal("expected half-open to allow a trial request")
	}

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func() error { return nil })
	}
	if cb.GetState() != "closed" {
		t.Fatalf("expected closed after successful trials, got %s", cb.GetState())
	}
}

func TestSlidingWindowErrorRate(t *testing.T) {
	sw := NewSlidingWindow(time.Second, 10)
	sw.RecordSuccess()
	sw.RecordSuccess()
	sw.RecordFailure()

	if rate := sw.ErrorRate(); rate < 0.33 || rate > 0.34 {
		t.Fatalf("expected ~0.33 error rate, got %f", rate)
	}
	if total := sw.Total(); total != 3 {
		t.Fatalf("expected 3 total events, got %d", total)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), &RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}, func() error {
		attempts++
		return errors.New("always fails")
	})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}
