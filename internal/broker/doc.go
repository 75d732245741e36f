// Package broker serializes access to the external CLI reasoning backend.
// Every chat request in the process funnels into one Broker, which guarantees
// at most one backend subprocess at a time. It is structured into small files
// by concern:
//
//   - broker.go: core Broker type, queue, worker loop, Chat entry point.
//   - config.go: BrokerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: internal request/response types and collaborator interfaces.
//   - errors.go: error types and helpers (IsTimeout, IsBackendExit, ...).
//   - circuit.go: Closed/Open/Half-Open circuit breaker.
//   - retry.go: error classification and the bounded retry loop.
//   - exec.go: subprocess executor with escalating termination.
//   - parse.go: NDJSON stream parsing into text + session id.
//   - session.go: live-conversation session tracking.
//   - events.go: EventPublisher hook for lifecycle events.
//
// External packages should treat this package as the coordination layer and
// use public methods only (NewWithConfig, Chat, ResetSession, CircuitState,
// Status, Ready, Close). Internal types are subject to change.
package broker
