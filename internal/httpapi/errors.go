package httpapi

import (
	"encoding/json"
	"net/http"

	"chatd/internal/broker"
	"chatd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps broker errors to HTTP status codes. A degraded
// response while the circuit is open is not an error and never reaches
// this mapping; failures that exhausted their retries surface as 502
// since the daemon itself is fine and the backend is not.
func statusForError(err error) int {
	switch {
	case broker.IsOverloaded(err):
		return http.StatusTooManyRequests
	case broker.IsClosed(err):
		return http.StatusServiceUnavailable
	case broker.IsTimeout(err), broker.IsSpawnFailure(err), broker.IsBackendExit(err):
		return http.StatusBadGateway
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
