package broker

import (
	"testing"
	"time"
)

// fakeClock lets tests drive the breaker's view of time.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*circuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := newCircuitBreaker(threshold, cooldown)
	cb.now = clock.now
	return cb, clock
}

func TestCircuitOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)
	for i := 0; i < 2; i++ {
		cb.recordFailure()
		if got := cb.currentState(); got != CircuitClosed {
			t.Fatalf("after %d failures: state = %s, want closed", i+1, got)
		}
	}
	cb.recordFailure()
	if got := cb.currentState(); got != CircuitOpen {
		t.Fatalf("after threshold failures: state = %s, want open", got)
	}
	if cb.canExecute() {
		t.Fatal("canExecute should be false while open")
	}
}

func TestCircuitSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)
	cb.recordFailure()
	cb.recordFailure()
	cb.recordSuccess()
	cb.recordFailure()
	cb.recordFailure()
	if got := cb.currentState(); got != CircuitClosed {
		t.Fatalf("state = %s, want closed (count reset by success)", got)
	}
}

func TestCircuitCooldownMovesToHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		cb.recordFailure()
	}
	clock.advance(29 * time.Second)
	if cb.canExecute() {
		t.Fatal("canExecute should be false before cooldown elapses")
	}
	clock.advance(1 * time.Second)
	if !cb.canExecute() {
		t.Fatal("canExecute should be true once cooldown has elapsed")
	}
	if got := cb.currentState(); got != CircuitHalfOpen {
		t.Fatalf("state = %s, want half_open", got)
	}
}

func TestCircuitHalfOpenSuccessCloses(t *testing.T) {
	cb, clock := newTestBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		cb.recordFailure()
	}
	clock.advance(30 * time.Second)
	if !cb.canExecute() {
		t.Fatal("probe should be admitted after cooldown")
	}
	cb.recordSuccess()
	if got := cb.currentState(); got != CircuitClosed {
		t.Fatalf("state = %s, want closed after probe success", got)
	}
}

func TestCircuitHalfOpenFailureReopensImmediately(t *testing.T) {
	cb, clock := newTestBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		cb.recordFailure()
	}
	clock.advance(30 * time.Second)
	if !cb.canExecute() {
		t.Fatal("probe should be admitted after cooldown")
	}
	cb.recordFailure()
	if got := cb.currentState(); got != CircuitOpen {
		t.Fatalf("state = %s, want open after probe failure", got)
	}
	// The failed probe restarts the cooldown window.
	clock.advance(29 * time.Second)
	if cb.canExecute() {
		t.Fatal("cooldown should restart from the probe failure")
	}
}

func TestCurrentStateAppliesLazyTransition(t *testing.T) {
	cb, clock := newTestBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		cb.recordFailure()
	}
	clock.advance(31 * time.Second)
	// No canExecute call in between: introspection alone should report
	// half_open.
	if got := cb.currentState(); got != CircuitHalfOpen {
		t.Fatalf("state = %s, want half_open via lazy transition", got)
	}
}
