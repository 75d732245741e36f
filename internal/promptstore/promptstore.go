// Package promptstore loads per-topic instruction prompts from a directory
// of markdown files and keeps them fresh while the daemon runs.
//
// Each <topic>.md file in the directory becomes one topic; requests with an
// empty topic use DefaultTopic. Edits to prompt files are picked up by a
// filesystem watcher, so operators can tune instructions without a restart.
package promptstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultTopic is used when a request carries no topic.
const DefaultTopic = "default"

// Store holds the loaded prompts. Safe for concurrent use.
type Store struct {
	dir string
	log zerolog.Logger

	mu      sync.RWMutex
	prompts map[string]string
}

// New loads all prompt files from dir. A missing directory is not an error;
// the store simply has no prompts until files appear and Watch picks them up.
func New(dir string, log zerolog.Logger) (*Store, error) {
	s := &Store{dir: dir, log: log, prompts: map[string]string{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read prompt dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		if err := s.loadFile(filepath.Join(dir, entry.Name())); err != nil {
			s.log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping unreadable prompt file")
		}
	}
	return s, nil
}

// Instructions returns the prompt for topic, falling back to the default
// topic's prompt when the topic is empty or unknown. Empty string means no
// instructions are configured.
func (s *Store) Instructions(topic string) string {
	if topic == "" {
		topic = DefaultTopic
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.prompts[topic]; ok {
		return p
	}
	return s.prompts[DefaultTopic]
}

// Topics returns the loaded topic names.
func (s *Store) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.prompts))
	for t := range s.prompts {
		out = append(out, t)
	}
	return out
}

// Watch reloads prompt files as they change, until stop is closed. It owns
// the fsnotify watcher for the prompt directory.
func (s *Store) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create prompt watcher: %w", err)
	}
	defer watcher.Close()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("ensure prompt dir: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			switch {
			case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
				if err := s.loadFile(event.Name); err != nil {
					s.log.Warn().Err(err).Str("file", event.Name).Msg("prompt reload failed")
					continue
				}
				s.log.Info().Str("topic", topicFromPath(event.Name)).Msg("prompt reloaded")
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				s.remove(topicFromPath(event.Name))
				s.log.Info().Str("topic", topicFromPath(event.Name)).Msg("prompt removed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Error().Err(err).Msg("prompt watcher error")
		}
	}
}

func (s *Store) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	topic := topicFromPath(path)
	s.mu.Lock()
	s.prompts[topic] = strings.TrimSpace(string(data))
	s.mu.Unlock()
	return nil
}

func (s *Store) remove(topic string) {
	s.mu.Lock()
	delete(s.prompts, topic)
	s.mu.Unlock()
}

func topicFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".md")
}
