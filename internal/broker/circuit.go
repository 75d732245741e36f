package broker

import (
	"sync"
	"time"
)

// CircuitState is the breaker's externally visible state.
type CircuitState string

const (
	// CircuitClosed: backend healthy, requests flow normally.
	CircuitClosed CircuitState = "closed"
	// CircuitOpen: backend failing, requests get degraded responses.
	CircuitOpen CircuitState = "open"
	// CircuitHalfOpen: cooldown elapsed, next request probes the backend.
	CircuitHalfOpen CircuitState = "half_open"
)

// circuitBreaker guards the backend against repeated failed invocations.
// Consecutive failures at or above threshold open the circuit; after
// cooldown the next canExecute call moves it to half-open and one probe
// request is allowed through. State transitions happen lazily on
// canExecute rather than on a timer goroutine.
//
// The worker is the only caller of canExecute/record*, but CircuitState is
// read from HTTP handlers, so a mutex guards the fields.
type circuitBreaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     CircuitClosed,
	}
}

// canExecute reports whether a request may reach the backend, transitioning
// Open to Half-Open when the cooldown has elapsed.
func (cb *circuitBreaker) canExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.cooldown {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	}
	return false
}

// recordSuccess closes the circuit and clears the failure count.
func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.mu.Unlock()
}

// recordFailure counts one exhausted invocation. A failure in half-open
// reopens immediately; in closed, the circuit opens at threshold.
func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	cb.failures++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.failures >= cb.threshold {
		cb.state = CircuitOpen
	}
	cb.mu.Unlock()
}

// currentState returns the live state, applying the lazy Open→Half-Open
// transition so introspection matches what the next request would see.
func (cb *circuitBreaker) currentState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.lastFailure) >= cb.cooldown {
		cb.state = CircuitHalfOpen
	}
	return cb.state
}
