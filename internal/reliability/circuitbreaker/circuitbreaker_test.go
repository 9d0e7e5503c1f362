package circuitbreaker

import (
	"testing"
	"time"
)

func TestOpensAfterThreshold(t *testing.T) {
	b := New(3, 1, time.Minute)
	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("expected closed breaker to allow")
		}
		b.RecordFailure()
	}
	if b.CurrentState() != StateOpen {
		t.Fatalf("expected open after threshold failures")
	}
	if b.Allow() {
		t.Fatalf("expected open breaker to fast-fail")
	}
}

func TestHalfOpenAfterCooldownThenCloses(t *testing.T) {
	b := New(1, 2, 10*time.Millisecond)
	b.RecordFailure()
	if b.CurrentState() != StateOpen {
		t.Fatalf("expected open")
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatalf("expected half-open probe after cooldown")
	}
	if b.CurrentState() != StateHalfOpen {
		t.Fatalf("expected half-open state")
	}

	b.RecordSuccess()
	b.RecordSuccess()
	if b.CurrentState() != StateClosed {
		t.Fatalf("expected closed after success threshold")
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(1, 2, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatalf("expected probe allowed")
	}
	b.RecordFailure()
	if b.CurrentState() != StateOpen {
		t.Fatalf("expected failure in half-open to reopen")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(2, 1, time.Minute)
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	if b.CurrentState() != StateClosed {
		t.Fatalf("expected interleaved successes to keep breaker closed")
	}
}
