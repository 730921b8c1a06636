package pipeline

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit-breaker states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker wraps a port (VAD, ASR, or MT) with a fault-isolation
// state machine: 5 consecutive failures within 10s opens it; it probes
// again after 30s; one success closes it, one failure during the probe
// reopens it.
type CircuitBreaker struct {
	mu sync.Mutex

	state        BreakerState
	failureCount int
	windowStart  time.Time
	openedAt     time.Time

	failureWindow time.Duration
	openDuration  time.Duration
	failThreshold int

	clock Clock
}

// NewCircuitBreaker constructs a breaker with the default thresholds
// (5 failures / 10s window, 30s open duration).
func NewCircuitBreaker(clock Clock) *CircuitBreaker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CircuitBreaker{
		state:         BreakerClosed,
		failureWindow: 10 * time.Second,
		openDuration:  30 * time.Second,
		failThreshold: 5,
		clock:         clock,
	}
}

// Allow reports whether a call should be attempted right now. While Open
// and the cool-down has not elapsed, calls fail fast. Once the cool-down
// elapses the breaker transitions to HalfOpen; while HalfOpen every call is
// allowed until the next RecordSuccess or RecordFailure settles the state.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		return true
	case BreakerOpen:
		if now.Sub(b.openedAt) >= b.openDuration {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	}
	return false
}

// RecordSuccess transitions HalfOpen->Closed and resets the failure
// counter. A success while Closed simply resets the window.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failureCount = 0
	b.windowStart = time.Time{}
}

// RecordFailure transitions Closed->Open after failThreshold failures
// within failureWindow, and HalfOpen->Open immediately on a single failed
// probe.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = now
		b.failureCount = 0
		b.windowStart = time.Time{}
		return
	}

	if b.windowStart.IsZero() || now.Sub(b.windowStart) > b.failureWindow {
		b.windowStart = now
		b.failureCount = 0
	}
	b.failureCount++

	if b.failureCount >= b.failThreshold {
		b.state = BreakerOpen
		b.openedAt = now
		b.failureCount = 0
		b.windowStart = time.Time{}
	}
}

// TripOpen forces the breaker Open immediately. The pipeline's stages do not
// call it: they report every port error through RecordFailure.
func (b *CircuitBreaker) TripOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerOpen
	b.openedAt = b.clock.Now()
	b.failureCount = 0
	b.windowStart = time.Time{}
}

// State returns the current state, mainly for metrics/tests.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
