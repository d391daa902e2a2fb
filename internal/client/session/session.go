// Package session persists the CLI login state between invocations.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hongminglow/ondata-be/internal/models"
)

// ErrNoSession is returned by Load when nobody is logged in.
var ErrNoSession = errors.New("no active session")

// State is what the CLI remembers after login.
type State struct {
	Token        string               `json:"token"`
	Username     string               `json:"username"`
	Measurements []models.Measurement `json:"measurements,omitempty"`
	SavedAt      time.Time            `json:"saved_at"`
}

// Store reads and writes State as a JSON file.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// DefaultPath resolves ONDATA_SESSION or falls back to the user config dir.
func DefaultPath() (string, error) {
	if p := os.Getenv("ONDATA_SESSION"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "ondata", "session.json"), nil
}

// Load returns the saved state, or ErrNoSession.
func (s *Store) Load() (State, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, ErrNoSession
	}
	if err != nil {
		return State{}, fmt.Errorf("read session: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decode session: %w", err)
	}
	if st.Token == "" {
		return State{}, ErrNoSession
	}
	return st, nil
}

// Save writes st, replacing any previous state.
func (s *Store) Save(st State) error {
	st.SavedAt = s.now().UTC()
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

// Clear removes the saved state. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
