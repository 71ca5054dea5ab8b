package binding

import (
	"context"
	"sync"

	"github.com/DhruvWebDev/Deploify/internal/domain"
)

// MemoryStore is an in-process Store for single-host runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	bindings map[string]domain.SubdomainBinding
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bindings: make(map[string]domain.SubdomainBinding)}
}

var _ Store = (*MemoryStore)(nil)

// Put inserts the binding unless the subdomain is already bound.
func (s *MemoryStore) Put(_ context.Context, b domain.SubdomainBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bindings[b.Subdomain]; ok {
		return ErrExists
	}
	s.bindings[b.Subdomain] = b
	return nil
}

// Get returns the binding for a subdomain.
func (s *MemoryStore) Get(_ context.Context, subdomain string) (domain.SubdomainBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[subdomain]
	if !ok {
		return domain.SubdomainBinding{}, ErrNotFound
	}
	return b, nil
}

// Remove deletes the binding only while it still references containerRef.
func (s *MemoryStore) Remove(_ context.Context, subdomain, containerRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[subdomain]
	if !ok {
		return nil
	}
	if containerRef != "" && b.ContainerRef != containerRef {
		return nil
	}
	delete(s.bindings, subdomain)
	return nil
}
