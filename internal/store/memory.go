package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jmerrifield20/wtomax/internal/custody"
)

// Memory is a StateStore that keeps the encoded snapshot in memory. Saved
// states are copied so later vault mutations never leak into the store.
type Memory struct {
	mu      sync.RWMutex
	raw     []byte
	version int64
	failErr error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory { return &Memory{} }

// Load implements StateStore.
func (m *Memory) Load(_ context.Context) (*custody.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.raw == nil {
		return nil, ErrNoState
	}
	var s custody.State
	if err := json.Unmarshal(m.raw, &s); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &s, nil
}

// Save implements StateStore.
func (m *Memory) Save(_ context.Context, state *custody.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.raw = raw
	m.version++
	return nil
}

// Version is the number of successful saves.
func (m *Memory) Version() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// FailWith makes every following Save return err until called with nil.
// Used to exercise rollback paths.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Close implements StateStore.
func (m *Memory) Close() error { return nil }
