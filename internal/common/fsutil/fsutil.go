// Package fsutil holds small path helpers shared by the chatd binaries.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome resolves a leading '~' against the current user's home
// directory, so flags like --data-dir accept "~/.chatd". Paths without the
// prefix pass through untouched.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	rel := strings.TrimPrefix(path[1:], "/")
	if rel == "" {
		return home, nil
	}
	return filepath.Join(home, rel), nil
}

// PathExists reports whether path exists at all, regardless of type.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
