package broker

// Response is the outcome of a chat invocation.
type Response struct {
	// Text is the backend's response (or the degraded message when the
	// circuit is open).
	Text string
	// SessionID identifies the backend conversation the response belongs
	// to; empty for degraded responses.
	SessionID string
	// IsError is set on degraded responses so callers can render them
	// distinctly without treating them as failures.
	IsError bool
}

// request is one queued chat invocation. done is buffered so the worker
// never blocks delivering the result, even if the submitter gave up.
type request struct {
	id      string
	message string
	resume  string
	topic   string
	done    chan result
}

type result struct {
	resp Response
	err  error
}

// PromptStore supplies per-topic instruction text for new sessions.
type PromptStore interface {
	// Instructions returns the system prompt for topic; empty string when
	// the topic has no prompt.
	Instructions(topic string) string
}

// MemoryStore supplies remembered facts and extracts new ones from
// backend responses.
type MemoryStore interface {
	// ContextSection renders remembered facts as a block for inclusion in
	// new-session instructions; empty when nothing is remembered.
	ContextSection() string
	// Extract scans text for remember directives, returning the text with
	// directives stripped and the key/value updates found.
	Extract(text string) (clean string, updates map[string]string)
	// Apply persists updates.
	Apply(updates map[string]string) error
}

// TranscriptStore records conversations.
type TranscriptStore interface {
	StartSession(sessionID, topic string) error
	AppendMessage(sessionID, role, text string) error
}
