package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinBudget(t *testing.T) {
	l := New(3, 100, time.Minute)
	for i := 0; i < 3; i++ {
		if err := l.Allow(10); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := l.Allow(10); err != ErrLimited {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
}

func TestTokenBudgetIndependent(t *testing.T) {
	l := New(100, 50, time.Minute)
	if err := l.Allow(40); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow(20); err != ErrLimited {
		t.Fatalf("expected ErrLimited on token budget, got %v", err)
	}
	// rejected call must not consume anything
	if err := l.Allow(10); err != nil {
		t.Fatalf("remaining token budget should admit: %v", err)
	}
}

func TestWindowReset(t *testing.T) {
	l := New(1, 0, 20*time.Millisecond)
	if err := l.Allow(0); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow(0); err != ErrLimited {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := l.Allow(0); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}

func TestRemaining(t *testing.T) {
	l := New(5, 0, time.Minute)
	l.Allow(0)
	l.Allow(0)
	if got := l.Remaining(); got != 3 {
		t.Fatalf("remaining = %d, want 3", got)
	}
}

func TestDisabledBudgets(t *testing.T) {
	l := New(0, 0, time.Minute)
	for i := 0; i < 1000; i++ {
		if err := l.Allow(1000); err != nil {
			t.Fatalf("disabled budgets should always admit: %v", err)
		}
	}
}
