package resilience

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker("cache", 3, time.Minute, zap.NewNop())
	now := time.Now()

	for i := 0; i < 2; i++ {
		b.RecordFailure(now)
	}
	if b.State() != StateClosed {
		t.Fatalf("state after 2 failures: %v", b.State())
	}

	b.RecordFailure(now)
	if b.State() != StateOpen {
		t.Fatalf("state after 3 failures: %v", b.State())
	}
	if b.Allow(now) {
		t.Error("open breaker admitted a call")
	}
}

func TestBreaker_HalfOpenSingleTrial(t *testing.T) {
	b := NewBreaker("queue", 1, time.Minute, zap.NewNop())
	now := time.Now()

	b.RecordFailure(now)
	if b.State() != StateOpen {
		t.Fatal("breaker did not open")
	}

	later := now.Add(2 * time.Minute)
	if !b.Allow(later) {
		t.Fatal("trial call was not admitted after reset timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state during trial: %v", b.State())
	}
	if b.Allow(later) {
		t.Error("second concurrent trial was admitted")
	}

	b.RecordSuccess(later)
	if b.State() != StateClosed {
		t.Fatalf("state after successful trial: %v", b.State())
	}
	if !b.Allow(later) {
		t.Error("closed breaker rejected a call")
	}
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	b := NewBreaker("rpc", 1, time.Minute, zap.NewNop())
	now := time.Now()

	b.RecordFailure(now)
	later := now.Add(2 * time.Minute)
	if !b.Allow(later) {
		t.Fatal("trial call was not admitted")
	}

	b.RecordFailure(later)
	if b.State() != StateOpen {
		t.Fatalf("state after failed trial: %v", b.State())
	}
	// Timer restarted at the failed trial; still inside the window.
	if b.Allow(later.Add(30 * time.Second)) {
		t.Error("reopened breaker admitted a call before the new timeout")
	}
	if !b.Allow(later.Add(2 * time.Minute)) {
		t.Error("reopened breaker refused a trial after the new timeout")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("cache", 3, time.Minute, zap.NewNop())
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now)
	b.RecordSuccess(now)
	b.RecordFailure(now)
	b.RecordFailure(now)
	if b.State() != StateClosed {
		t.Error("non-consecutive failures tripped the breaker")
	}
}

func TestBreaker_ForceStateAndReset(t *testing.T) {
	b := NewBreaker("cache", 3, time.Minute, zap.NewNop())
	now := time.Now()

	b.ForceState(StateOpen, now)
	if b.Allow(now) {
		t.Error("forced-open breaker admitted a call")
	}

	b.Reset(now)
	snap := b.Snapshot()
	if snap.State != "closed" || snap.FailureCount != 0 {
		t.Errorf("unexpected snapshot after reset: %+v", snap)
	}
	if !b.Allow(now) {
		t.Error("reset breaker rejected a call")
	}
}
