package types

// ChatRequest represents a chat request payload.
type ChatRequest struct {
	// Required user message to send to the backend.
	// example: Summarize today's plan.
	Message string `json:"message" example:"Summarize today's plan."`
	// Optional session identifier to resume an earlier conversation.
	// example: 5e9c2c1e-7c3a-4b7e-9a51-b9a1f0f1a2b3
	SessionID string `json:"session_id,omitempty" example:"5e9c2c1e-7c3a-4b7e-9a51-b9a1f0f1a2b3"`
	// Optional topic tag selecting the instruction prompt. Empty uses the default topic.
	// example: journal
	Topic string `json:"topic,omitempty" example:"journal"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	// Response text produced by the backend (directive markers stripped).
	Text string `json:"text"`
	// Session identifier of the live conversation; pass back to resume.
	SessionID string `json:"session_id,omitempty"`
	// True when this is a degraded response (backend unavailable).
	// example: false
	IsError bool `json:"is_error"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: message is required
	Error string `json:"error" example:"message is required"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Circuit breaker state: closed, open, or half_open.
	// example: closed
	CircuitState string `json:"circuit_state" example:"closed"`
	// Number of requests waiting in the broker queue.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Whether a backend invocation is currently in flight.
	Inflight bool `json:"inflight"`
	// Session identifier of the live conversation, if any.
	SessionID string `json:"session_id,omitempty"`
	// Topic of the live conversation, if any.
	Topic string `json:"topic,omitempty"`
	// Total requests accepted since start.
	// example: 42
	RequestsTotal uint64 `json:"requests_total" example:"42"`
	// Total requests that ultimately failed.
	// example: 2
	FailuresTotal uint64 `json:"failures_total" example:"2"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
