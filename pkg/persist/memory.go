package persist

import (
	"context"
	"sync"
)

// Memory is a minimal in-memory Backend intended for tests and examples.
type Memory struct {
	mu       sync.RWMutex
	payloads map[string][]byte
}

// NewMemory constructs an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{payloads: map[string][]byte{}}
}

// Load returns a copy of the payload stored under key.
func (m *Memory) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	payload, ok := m.payloads[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), payload...), true, nil
}

// Save stores a copy of payload under key, replacing any previous value.
func (m *Memory) Save(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	if m.payloads == nil {
		m.payloads = map[string][]byte{}
	}
	m.payloads[key] = append([]byte(nil), payload...)
	m.mu.Unlock()
	return nil
}
