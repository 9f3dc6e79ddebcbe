package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// MonitorSettings is the per-owner presentation state of the web monitor.
type MonitorSettings struct {
	Visible   bool `yaml:"visible" json:"visible"`
	Minimized bool `yaml:"minimized" json:"minimized"`
}

// DefaultMonitorSettings shows the monitor expanded.
func DefaultMonitorSettings() MonitorSettings {
	return MonitorSettings{Visible: true}
}

// SettingsStore keeps monitor settings in a local YAML file. An empty path
// keeps them in memory only.
type SettingsStore struct {
	path string

	mu       sync.Mutex
	settings map[string]MonitorSettings
}

// OpenSettingsStore loads path if it exists.
func OpenSettingsStore(path string) (*SettingsStore, error) {
	s := &SettingsStore{path: path, settings: make(map[string]MonitorSettings)}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read monitor settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.settings); err != nil {
		return nil, fmt.Errorf("failed to parse monitor settings: %w", err)
	}
	if s.settings == nil {
		s.settings = make(map[string]MonitorSettings)
	}
	return s, nil
}

// Get returns the owner's settings or the defaults.
func (s *SettingsStore) Get(ownerID string) MonitorSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if settings, ok := s.settings[ownerID]; ok {
		return settings
	}
	return DefaultMonitorSettings()
}

// Put stores and persists the owner's settings.
func (s *SettingsStore) Put(ownerID string, settings MonitorSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[ownerID] = settings
	if s.path == "" {
		return nil
	}

	data, err := yaml.Marshal(s.settings)
	if err != nil {
		return fmt.Errorf("failed to marshal monitor settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write monitor settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace monitor settings: %w", err)
	}
	return nil
}
