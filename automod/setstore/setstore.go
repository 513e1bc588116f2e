package setstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Named sets of strings, consulted by rules. The invite rule keeps its whitelist of guild IDs in the "invite-whitelist" set.
type SetStore interface {
	InSet(ctx context.Context, name, val string) (bool, error)
	// Replaces the full contents of a set.
	SetValues(ctx context.Context, name string, vals []string) error
}

type MemSetStore struct {
	mu   sync.RWMutex
	Sets map[string]map[string]bool
}

var _ SetStore = (*MemSetStore)(nil)

func NewMemSetStore() *MemSetStore {
	return &MemSetStore{
		Sets: make(map[string]map[string]bool),
	}
}

// Returns false when the set doesn't exist at all.
func (s *MemSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.Sets[name]
	if !ok {
		return false, nil
	}
	return set[val], nil
}

func (s *MemSetStore) SetValues(ctx context.Context, name string, vals []string) error {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sets[name] = m
	return nil
}

// Loads a JSON object mapping set names to arrays of values. Sets in the file replace any existing set of the same name.
func (s *MemSetStore) LoadFromFileJSON(p string) error {
	return LoadFromFileJSON(context.Background(), s, p)
}

// Same as MemSetStore.LoadFromFileJSON, for any SetStore implementation.
func LoadFromFileJSON(ctx context.Context, s SetStore, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var sets map[string][]string
	if err := json.Unmarshal(raw, &sets); err != nil {
		return fmt.Errorf("parsing sets file %s: %w", p, err)
	}

	for name, l := range sets {
		if err := s.SetValues(ctx, name, l); err != nil {
			return err
		}
	}
	return nil
}
