package store

import (
	"context"
	"sync"

	"github.com/passkit/gemtot/beacon"
)

// MemoryStore keeps configurations in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]beacon.Config
	writes  int
	seed    bool
	closed  bool
}

// NewMemoryStore returns an empty store that seeds defaults on first load.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string]beacon.Config), seed: true}
}

// NewMemoryStoreWithoutSeed returns an empty store whose Load reports
// ErrNotFound for unknown names.
func NewMemoryStoreWithoutSeed() *MemoryStore {
	return &MemoryStore{configs: make(map[string]beacon.Config)}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, name string) (beacon.Config, error) {
	if err := ctx.Err(); err != nil {
		return beacon.Config{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return beacon.Config{}, ErrClosed
	}
	cfg, ok := m.configs[name]
	if !ok {
		if !m.seed {
			return beacon.Config{}, ErrNotFound
		}
		cfg = beacon.Default()
		m.configs[name] = cfg
	}
	return checkLoaded(name, cfg)
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, name string, cfg beacon.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if old, ok := m.configs[name]; ok && old == cfg {
		return nil
	}
	m.configs[name] = cfg
	m.writes++
	return nil
}

// Writes returns how many saves changed a stored value.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
