package store

import (
	"context"
	"sync"

	"github.com/zenderhuis/portier/core"
	"github.com/zenderhuis/portier/ports"
)

// MemoryStore is an in-memory implementation of the Store interface. It is
// not durable across restarts; use it for tests and ephemeral runs.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]core.Credential
	values      map[string]string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() ports.Store {
	return &MemoryStore{
		credentials: make(map[string]core.Credential),
		values:      make(map[string]string),
	}
}

// GetCredential returns the named credential, or nil when absent.
func (s *MemoryStore) GetCredential(ctx context.Context, name string) (*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[name]
	if !ok {
		return nil, nil
	}
	copied := cred
	return &copied, nil
}

// PutCredential stores a credential under its name.
func (s *MemoryStore) PutCredential(ctx context.Context, c *core.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials[c.Name] = *c
	return nil
}

// GetValue returns a plain stored value, or "" when absent.
func (s *MemoryStore) GetValue(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values[key], nil
}

// PutValue stores a plain value under a key.
func (s *MemoryStore) PutValue(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

// Remove deletes the given keys from both maps.
func (s *MemoryStore) Remove(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.credentials, key)
		delete(s.values, key)
	}
	return nil
}

// Clear removes everything.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials = make(map[string]core.Credential)
	s.values = make(map[string]string)
	return nil
}
