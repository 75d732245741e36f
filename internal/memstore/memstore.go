// Package memstore persists facts the backend is asked to remember across
// sessions. Responses may carry inline remember directives; the store strips
// them from the text shown to the user, persists the key/value pairs to a
// YAML file, and renders the accumulated facts as a context section that is
// appended to new-session instructions.
package memstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Extractor finds remember directives in response text.
type Extractor interface {
	// Extract returns text with directives removed plus the key/value
	// updates found. updates is nil when the text carried none.
	Extract(text string) (clean string, updates map[string]string)
}

// directivePattern matches [[remember: key=value]] with tolerant spacing.
var directivePattern = regexp.MustCompile(`\[\[remember:\s*([^=\]]+?)\s*=\s*([^\]]+?)\s*\]\]`)

// DirectiveExtractor is the standard Extractor.
type DirectiveExtractor struct{}

func (DirectiveExtractor) Extract(text string) (string, map[string]string) {
	matches := directivePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	updates := make(map[string]string, len(matches))
	for _, m := range matches {
		updates[m[1]] = m[2]
	}
	clean := directivePattern.ReplaceAllString(text, "")
	// Collapse the whitespace the directives leave behind.
	clean = strings.Join(strings.Fields(clean), " ")
	return strings.TrimSpace(clean), updates
}

// Store is a YAML-file-backed fact store. Safe for concurrent use.
type Store struct {
	path string
	log  zerolog.Logger
	ext  Extractor

	mu    sync.Mutex
	facts map[string]string
}

// New loads facts from path; a missing file yields an empty store.
func New(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{path: path, log: log, ext: DirectiveExtractor{}, facts: map[string]string{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read memory file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.facts); err != nil {
		return nil, fmt.Errorf("parse memory file: %w", err)
	}
	if s.facts == nil {
		s.facts = map[string]string{}
	}
	return s, nil
}

// SetExtractor overrides the directive extractor.
func (s *Store) SetExtractor(ext Extractor) { s.ext = ext }

// Extract implements the broker's memory boundary by delegating to the
// configured Extractor.
func (s *Store) Extract(text string) (string, map[string]string) {
	return s.ext.Extract(text)
}

// ContextSection renders remembered facts as a markdown block, or empty
// when nothing is remembered. Keys are sorted for stable output.
func (s *Store) ContextSection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.facts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s.facts))
	for k := range s.facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("## Remembered facts\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, s.facts[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// Apply merges updates into the store and persists the whole fact set.
func (s *Store) Apply(updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range updates {
		s.facts[k] = v
		s.log.Info().Str("key", k).Msg("remembered fact")
	}
	return s.persistLocked()
}

// Facts returns a copy of the remembered facts.
func (s *Store) Facts() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.facts))
	for k, v := range s.facts {
		out[k] = v
	}
	return out
}

// persistLocked writes the fact set atomically: temp file in the same
// directory, then rename over the target.
func (s *Store) persistLocked() error {
	data, err := yaml.Marshal(s.facts)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure memory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".memory-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp memory file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close memory file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}
