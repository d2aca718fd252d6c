package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
)

var errFlaky = errors.New("flaky")

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("reports", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})
	now := time.Now()
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return errFlaky }); !errors.Is(err, errFlaky) {
			t.Fatalf("expected errFlaky, got %v", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("expected fn not to run while open")
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected the trial call to run, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after a good trial call, got %s", cb.State())
	}
	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("reports", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errFlaky })
	now = now.Add(2 * time.Second)
	_ = cb.Execute(func() error { return errFlaky })
	if cb.State() != StateOpen {
		t.Fatalf("expected open after a failed trial call, got %s", cb.State())
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after Reset, got %s", cb.State())
	}
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	attempts := 0
	err := Retry(context.Background(), "publish", cfg, func() error {
		attempts++
		if attempts < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Fatalf("expected success on attempt 3, got %v after %d", err, attempts)
	}

	attempts = 0
	err = Retry(context.Background(), "publish", cfg, func() error {
		attempts++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) || attempts != 3 {
		t.Fatalf("expected errFlaky after 3 attempts, got %v after %d", err, attempts)
	}
}

func TestRetryStopsOnPermanentErrors(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, errFlaky) },
	}
	attempts := 0
	_ = Retry(context.Background(), "save", cfg, func() error {
		attempts++
		return errFlaky
	})
	if attempts != 1 {
		t.Errorf("expected 1 attempt for a permanent error, got %d", attempts)
	}

	attempts = 0
	_ = Retry(context.Background(), "save", RetryConfig{MaxAttempts: 5}, func() error {
		attempts++
		return ErrCircuitOpen
	})
	if attempts != 1 {
		t.Errorf("expected an open circuit not to be retried, got %d attempts", attempts)
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "save", RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}, func() error { return errFlaky })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBound(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	tests := []struct {
		name     string
		limit    time.Duration
		fn       func(context.Context) error
		expected error
	}{
		{"deadline passes", 10 * time.Millisecond, slow, apperrors.ErrTimeout},
		{"finishes in time", time.Second, func(context.Context) error { return errFlaky }, errFlaky},
		{"no limit", 0, func(context.Context) error { return nil }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Bound(context.Background(), tt.limit, tt.fn)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestBoundParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Bound(ctx, time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
