package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCircuitBreaker_ClosedState(t *testing.T) {
	cb := New(DefaultConfig())

	err := cb.Execute(context.Background(), func() error {
		return nil
	})

	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed, got %v", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 3, Timeout: time.Second, Name: "east"})
	testErr := errors.New("peer unreachable")

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), func() error {
			return testErr
		})
	}

	if cb.State() != StateOpen {
		t.Errorf("expected open, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 2, Name: "east"})

	cb.Execute(context.Background(), func() error {
		return errors.New("fail")
	})

	time.Sleep(20 * time.Millisecond)

	// Need HalfOpenMax successes to close
	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() error {
			return nil
		})
	}

	if cb.State() != StateClosed {
		t.Errorf("expected closed after successes, got %v", cb.State())
	}
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: time.Hour, Name: "east"})

	cb.Execute(context.Background(), func() error {
		return errors.New("fail")
	})

	err := cb.Execute(context.Background(), func() error {
		return nil
	})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if !strings.Contains(err.Error(), "east") {
		t.Errorf("expected error to name the tripped breaker, got %v", err)
	}
}

func TestCircuitBreaker_OnStateChangeReceivesName(t *testing.T) {
	var gotName string
	var gotTo State
	cb := New(Config{
		MaxFailures: 1,
		Timeout:     time.Hour,
		Name:        "bridge_create",
		OnStateChange: func(name string, from, to State) {
			gotName, gotTo = name, to
		},
	})

	cb.Execute(context.Background(), func() error {
		return errors.New("fail")
	})

	// OnStateChange fires on its own goroutine; give it a moment.
	time.Sleep(10 * time.Millisecond)

	if gotName != "bridge_create" {
		t.Errorf("expected state-change callback to see breaker name, got %q", gotName)
	}
	if gotTo != StateOpen {
		t.Errorf("expected transition to open, got %v", gotTo)
	}
}
