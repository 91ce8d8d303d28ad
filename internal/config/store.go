package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"audiobook-builder/internal/domain"
)

// Store defines persistence operations for user preferences.
type Store interface {
	Load() (domain.Preferences, error)
	Save(domain.Preferences) error
}

// JSONStore persists preferences in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed preferences store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// DefaultPath returns the per-user preferences file location.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return filepath.Join(homeDir, ".audiobook-builder", "settings.json")
}

// Load reads preferences from disk or returns defaults when missing.
func (s *JSONStore) Load() (domain.Preferences, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultPreferences(), nil
		}

		return domain.Preferences{}, err
	}

	var prefs domain.Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return domain.Preferences{}, err
	}

	return Normalize(prefs), nil
}

// Save writes preferences as indented JSON and creates parent directories.
func (s *JSONStore) Save(prefs domain.Preferences) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(Normalize(prefs), "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}
