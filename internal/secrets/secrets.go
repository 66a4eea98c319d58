package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dashmirror/internal/dashboard"
)

// Store keeps connection credentials in a file readable only by the
// owning user, keyed by connection identifier.
type Store struct {
	mu      sync.Mutex
	path    string
	entries map[string]dashboard.Credentials
}

// NewStore opens (or creates) the secret file at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("secrets: ensure directory: %w", err)
	}

	s := &Store{path: path, entries: make(map[string]dashboard.Credentials)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: read store: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("secrets: parse store: %w", err)
		}
	}
	return s, nil
}

// Save stores credentials under key.
func (s *Store) Save(key string, creds dashboard.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = creds
	return s.persistLocked()
}

// Get returns the credentials for key, or nil when none are stored.
func (s *Store) Get(key string) *dashboard.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, ok := s.entries[key]
	if !ok {
		return nil
	}
	return &creds
}

// Delete removes the credentials for key.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	bytes, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("secrets: encode store: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, bytes, 0o600); err != nil {
		return fmt.Errorf("secrets: write temp store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("secrets: replace store: %w", err)
	}
	return nil
}
