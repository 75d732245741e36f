package broker

import "fmt"

// spawnError signals that the backend process could not be started at all
// (missing binary, fork/exec failure). Retryable.
type spawnError struct{ cause error }

func (e spawnError) Error() string { return "backend spawn failed: " + e.cause.Error() }
func (e spawnError) Unwrap() error { return e.cause }

// IsSpawnFailure reports whether err indicates the backend never started.
func IsSpawnFailure(err error) bool {
	_, ok := err.(spawnError)
	return ok
}

// timeoutError signals that the backend exceeded the invocation timeout and
// was terminated. Retryable.
type timeoutError struct{ limit string }

func (e timeoutError) Error() string { return "backend timed out after " + e.limit }

// IsTimeout reports whether err indicates an invocation timeout.
func IsTimeout(err error) bool {
	_, ok := err.(timeoutError)
	return ok
}

// backendExitError signals the backend ran and exited non-zero: it received
// the request and rejected it, so retrying would repeat the same failure.
type backendExitError struct {
	code   int
	stderr string
}

func (e backendExitError) Error() string {
	if e.stderr == "" {
		return fmt.Sprintf("backend exited with code %d", e.code)
	}
	return fmt.Sprintf("backend exited with code %d: %s", e.code, e.stderr)
}

// IsBackendExit reports whether err indicates a non-zero backend exit.
func IsBackendExit(err error) bool {
	_, ok := err.(backendExitError)
	return ok
}

// ExitCode returns the backend exit code carried by err, or -1.
func ExitCode(err error) int {
	if e, ok := err.(backendExitError); ok {
		return e.code
	}
	return -1
}

// overloadedError signals queue overflow for 429 mapping.
type overloadedError struct{ depth int }

func (e overloadedError) Error() string {
	return fmt.Sprintf("broker overloaded: queue depth %d reached", e.depth)
}

// ErrOverloaded constructs an overloadedError.
func ErrOverloaded(depth int) error { return overloadedError{depth: depth} }

// ErrTimeout constructs a timeoutError.
func ErrTimeout(limit string) error { return timeoutError{limit: limit} }

// ErrBackendExit constructs a backendExitError.
func ErrBackendExit(code int, stderr string) error {
	return backendExitError{code: code, stderr: stderr}
}

// IsOverloaded reports whether err indicates backpressure (return 429).
func IsOverloaded(err error) bool {
	_, ok := err.(overloadedError)
	return ok
}

// closedError signals a request submitted after Close.
type closedError struct{}

func (closedError) Error() string { return "broker is shut down" }

// IsClosed reports whether err indicates the broker has been closed.
func IsClosed(err error) bool {
	_, ok := err.(closedError)
	return ok
}
