package settings

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the process-local Store used when no database is
// configured. Same semantics as PostgresStore, nothing survives a
// restart.
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[string]string
	history []Change
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.values[key]
	s.values[key] = value
	s.history = append(s.history, Change{
		Key:       key,
		OldValue:  old,
		NewValue:  value,
		ChangedAt: time.Now().UTC(),
	})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return ErrNotFound
	}
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) All(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) History(_ context.Context, key string, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var changes []Change
	for i := len(s.history) - 1; i >= 0 && len(changes) < limit; i-- {
		if s.history[i].Key == key {
			changes = append(changes, s.history[i])
		}
	}
	return changes, nil
}

func (s *MemoryStore) Close() {}
