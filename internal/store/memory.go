package store

import (
	"context"
	"sync"
)

// Memory keeps slots in a map. Used for tests and throwaway sessions.
type Memory struct {
	mu    sync.Mutex
	slots map[string][]byte
}

// NewMemory creates an empty in-memory slot store
func NewMemory() *Memory {
	return &Memory{slots: make(map[string][]byte)}
}

// Get returns a copy of the slot contents
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.slots[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put overwrites the slot with a copy of value
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = append([]byte{}, value...)
	return nil
}

// Close is a no-op
func (m *Memory) Close() error { return nil }
