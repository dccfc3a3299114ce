package artifact

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a process-local Store, used when persistence is disabled.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[name]
	return ok, nil
}

func (s *MemoryStore) Load(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	blob, ok := s.blobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return decode(blob)
}

func (s *MemoryStore) Save(_ context.Context, name string, data []byte) error {
	blob := encode(data)
	s.mu.Lock()
	s.blobs[name] = blob
	s.mu.Unlock()
	return nil
}
