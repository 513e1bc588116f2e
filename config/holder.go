package config

import (
	"fmt"
	"sync/atomic"
)

// Holds the current configuration, allowing lock-free reads from event handlers while a reload swaps in a new value.
type Holder struct {
	path string
	cur  atomic.Pointer[Config]
}

func NewHolder(cfg *Config) *Holder {
	h := &Holder{}
	h.cur.Store(cfg)
	return h
}

// Loads the file at path, and remembers the path for later Reload calls.
func LoadHolder(path string) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	h := NewHolder(cfg)
	h.path = path
	return h, nil
}

func (h *Holder) Get() *Config {
	return h.cur.Load()
}

func (h *Holder) Set(cfg *Config) {
	h.cur.Store(cfg)
}

func (h *Holder) Path() string {
	return h.path
}

// Re-reads the config file. On failure the current configuration stays in place.
func (h *Holder) Reload() (*Config, error) {
	if h.path == "" {
		return nil, fmt.Errorf("configuration was not loaded from a file")
	}
	cfg, err := Load(h.path)
	if err != nil {
		return nil, err
	}
	h.cur.Store(cfg)
	return cfg, nil
}
