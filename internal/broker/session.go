package broker

import "sync"

// sessionTracker holds the identity of the live backend conversation.
// The worker mutates it between invocations; HTTP handlers read it for
// status and clear it on reset, so access is mutex-guarded.
type sessionTracker struct {
	mu    sync.Mutex
	id    string
	topic string
}

// resumeID decides whether a request continues the live conversation.
// It returns the session id to pass as --resume, or empty to start fresh.
// A fresh start is forced when the caller supplied no resume id, when no
// live session exists (including right after reset), or when the topic
// changed: resuming under new instructions would carry the old system
// prompt into the new topic.
func (s *sessionTracker) resumeID(requested, topic string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if requested == "" || s.id == "" || topic != s.topic {
		s.id = ""
		s.topic = ""
		return ""
	}
	return s.id
}

// set records the session the backend reported for the last invocation.
func (s *sessionTracker) set(id, topic string) {
	s.mu.Lock()
	s.id = id
	s.topic = topic
	s.mu.Unlock()
}

// reset clears the live session; the next request starts a new one
// regardless of any resume id it carries.
func (s *sessionTracker) reset() {
	s.mu.Lock()
	s.id = ""
	s.topic = ""
	s.mu.Unlock()
}

// current returns the live session id and topic.
func (s *sessionTracker) current() (id, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.topic
}
