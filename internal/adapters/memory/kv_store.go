// Package memory provides a process-local key/value store.
// Used by tests and by SESSION_BACKEND=memory, where nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/dark4shadow/soft-animal-platform/internal/ports"
)

var _ ports.KeyValueStore = (*KVStore)(nil)

// KVStore is a map guarded by a RWMutex. Values are copied on the way in and out.
type KVStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewKVStore returns an empty store.
func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string][]byte)}
}

// Get returns a copy of the value for key.
func (s *KVStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// SetAll writes every entry under one lock.
func (s *KVStore) SetAll(_ context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range entries {
		s.data[k] = append([]byte{}, v...)
	}
	return nil
}

// DeleteAll removes keys. Missing keys are ignored.
func (s *KVStore) DeleteAll(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// Len reports the number of stored keys.
func (s *KVStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
