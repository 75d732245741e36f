// Package transcript appends conversations to markdown files, one file per
// backend session. The files are for humans to read back later; nothing in
// the daemon parses them.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store writes transcripts under a data directory. Safe for concurrent use.
type Store struct {
	dir string
	log zerolog.Logger
	now func() time.Time

	mu    sync.Mutex
	files map[string]string // session id -> transcript path
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure transcript dir: %w", err)
	}
	return &Store{dir: dir, log: log, now: time.Now, files: map[string]string{}}, nil
}

// StartSession creates the transcript file for a new session and writes its
// header.
func (s *Store) StartSession(sessionID, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.pathForLocked(sessionID)
	header := fmt.Sprintf("# Conversation %s\n\n", sessionID)
	if topic != "" {
		header += fmt.Sprintf("Topic: %s\n", topic)
	}
	header += fmt.Sprintf("Started: %s\n", s.now().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(header), 0o644); err != nil {
		return fmt.Errorf("start transcript: %w", err)
	}
	s.log.Debug().Str("session_id", sessionID).Str("path", path).Msg("transcript started")
	return nil
}

// AppendMessage appends one message to the session's transcript. Sessions
// unknown to this process (resumed across a restart) get a file lazily.
func (s *Store) AppendMessage(sessionID, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.pathForLocked(sessionID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	entry := fmt.Sprintf("\n## %s (%s)\n\n%s\n", role, s.now().Format("15:04:05"), text)
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// pathForLocked returns the transcript path for a session, assigning a
// date-prefixed filename on first use.
func (s *Store) pathForLocked(sessionID string) string {
	if p, ok := s.files[sessionID]; ok {
		return p
	}
	name := fmt.Sprintf("%s-%s.md", s.now().Format("2006-01-02"), sessionID)
	p := filepath.Join(s.dir, name)
	s.files[sessionID] = p
	return p
}
