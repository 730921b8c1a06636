package pipeline

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := NewCircuitBreaker(clock)

	for i := 0; i < 4; i++ {
		if !b.Allow() {
			t.Fatalf("expected Allow true before threshold, iteration %d", i)
		}
		b.RecordFailure()
	}
	if b.State() != BreakerClosed {
		t.Fatalf("expected still closed after 4 failures, got %s", b.State())
	}

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after 5th failure, got %s", b.State())
	}
	if b.Allow() {
		t.Error("expected Allow false while open and before cooldown")
	}
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := NewCircuitBreaker(clock)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	clock.advance(31 * time.Second)
	if !b.Allow() {
		t.Fatal("expected Allow true after cooldown elapses")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half_open after cooldown probe, got %s", b.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := NewCircuitBreaker(clock)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.advance(31 * time.Second)
	b.Allow()
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("expected a half_open failure to reopen immediately, got %s", b.State())
	}
}

func TestCircuitBreakerSuccessCloses(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := NewCircuitBreaker(clock)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.advance(31 * time.Second)
	b.Allow()
	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed after a successful half_open probe, got %s", b.State())
	}
}

func TestCircuitBreakerWindowResets(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := NewCircuitBreaker(clock)
	b.RecordFailure()
	b.RecordFailure()
	clock.advance(11 * time.Second)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != BreakerClosed {
		t.Fatalf("expected failures outside the 10s window not to accumulate, got %s", b.State())
	}
}
