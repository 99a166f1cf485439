package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend keeps documents in process memory. Contents are lost on exit.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte

	reads  int
	writes int
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Read(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++

	data, ok := m.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBackend) Write(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++

	m.docs[name] = append([]byte(nil), data...)
	return nil
}

// Counts returns how many Read and Write calls the backend has served.
func (m *MemoryBackend) Counts() (reads, writes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads, m.writes
}

func (m *MemoryBackend) Close() error {
	return nil
}
