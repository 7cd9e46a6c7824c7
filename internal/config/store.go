package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/mgrall/skald/internal/bus"
	"gopkg.in/yaml.v3"
)

// Store is the runtime configuration store. It owns the current Config
// snapshot, exposes key/value access to the writable settings section, and
// publishes a config-loaded lifecycle event whenever the configuration is
// loaded or saved. Commands mutate settings through Set/Save; readers such
// as the dispatcher's prefix cache re-read after every publication.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
	bus  *bus.Bus
}

// NewStore creates a Store over an already-loaded Config. Call Announce to
// publish the initial config-loaded event once subscribers are in place.
func NewStore(cfg *Config, path string, b *bus.Bus) *Store {
	if cfg.Settings == nil {
		cfg.Settings = make(map[string]any)
	}
	return &Store{path: path, cfg: cfg, bus: b}
}

// Path returns the file path backing this store.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns the current configuration. Callers must treat the
// returned value as read-only.
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Announce publishes a config-loaded event carrying the current snapshot.
func (s *Store) Announce() {
	s.bus.Publish(bus.EventConfigLoaded, s.Snapshot())
}

// Replace swaps in a freshly loaded Config (hot reload of the file) and
// publishes config-loaded.
func (s *Store) Replace(cfg *Config) {
	if cfg.Settings == nil {
		cfg.Settings = make(map[string]any)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.Announce()
}

// Get returns the settings value for key, or false if absent.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cfg.Settings[key]
	return v, ok
}

// GetString returns the settings value for key as a string. Non-string
// values and absent keys return ("", false).
func (s *Store) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Masters returns the configured master-user IDs.
func (s *Store) Masters() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Host.Masters
}

// Set stores a settings value. The change is in-memory until Save.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Settings[key] = value
}

// Delete removes a settings key. The change is in-memory until Save.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cfg.Settings, key)
}

// Save writes the current configuration back to its file and publishes
// config-loaded so readers refresh their caches.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := yaml.Marshal(s.cfg)
	path := s.path
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}

	s.Announce()
	return nil
}
