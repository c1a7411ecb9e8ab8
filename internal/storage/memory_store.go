package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore is an in-memory MediaStore used in tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Save consumes the reader and records the bytes under taskID/name.
func (s *MemoryStore) Save(ctx context.Context, taskID, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}

	key := taskID + "/" + name
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()

	return "memory://" + key, nil
}

// Get returns the stored bytes for taskID/name.
func (s *MemoryStore) Get(taskID, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[taskID+"/"+name]
	return data, ok
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

var _ MediaStore = (*MemoryStore)(nil)
