// Package setup holds the application lifecycle state that gates admin routes until
// the initial setup is completed. Completion is persisted as a flag file.
package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// State is the setup completion flag. An empty path means setup is always complete.
type State struct {
	path     string
	complete atomic.Bool
}

// Load reads the flag file at path.
func Load(path string) (*State, error) {
	s := &State{path: path}
	if path == "" {
		s.complete.Store(true)
		return s, nil
	}

	_, err := os.Stat(path)
	switch {
	case err == nil:
		s.complete.Store(true)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("stat setup flag: %w", err)
	}
	return s, nil
}

// Path returns the flag file location.
func (s *State) Path() string { return s.path }

// IsComplete reports whether setup has been completed.
func (s *State) IsComplete() bool { return s.complete.Load() }

// MarkComplete persists completion. Calling it again is a no-op.
func (s *State) MarkComplete() error {
	if s.path != "" && !s.complete.Load() {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("create setup flag dir: %w", err)
		}
		stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
		if err := os.WriteFile(s.path, []byte(stamp), 0o644); err != nil {
			return fmt.Errorf("write setup flag: %w", err)
		}
	}
	s.complete.Store(true)
	return nil
}

// Reset removes the flag so setup has to be completed again.
func (s *State) Reset() error {
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove setup flag: %w", err)
	}
	s.complete.Store(false)
	return nil
}
