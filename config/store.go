package config

import (
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/providers/file"

	"github.com/haulnet/relay/core/logger"
)

// Store serves the current configuration to long-lived components. Sections
// are read through accessor funcs so hot reloads take effect on the next
// optimization pass without restarting anything.
type Store struct {
	cur atomic.Pointer[Config]

	mu   sync.Mutex
	subs []func(*Config)
}

// NewStore wraps an already loaded configuration.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.cur.Store(cfg)
	return s
}

// Current returns the live configuration snapshot.
func (s *Store) Current() *Config {
	return s.cur.Load()
}

// Swap replaces the configuration and notifies subscribers.
func (s *Store) Swap(cfg *Config) {
	s.cur.Store(cfg)
	s.mu.Lock()
	subs := append([]func(*Config){}, s.subs...)
	s.mu.Unlock()
	for _, f := range subs {
		f(cfg)
	}
}

// OnChange registers a callback invoked after every successful reload.
func (s *Store) OnChange(f func(*Config)) {
	s.mu.Lock()
	s.subs = append(s.subs, f)
	s.mu.Unlock()
}

// Watch reloads the file on change. A reload that fails to parse or
// validate is logged and discarded; the previous configuration stays live.
func (s *Store) Watch(path string, log logger.Logger) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			log.Errorf("config watch: %v", err)
			return
		}
		cfg, err := Load(path)
		if err != nil {
			log.Errorf("config reload rejected: %v", err)
			return
		}
		s.Swap(cfg)
		log.Infof("configuration reloaded from %s", path)
	})
}
