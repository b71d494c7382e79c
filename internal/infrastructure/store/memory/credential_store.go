// Package memory holds the default, process-local CredentialStore.
package memory

import (
	"context"
	"sync"

	"github.com/mathsolver/solver-api/internal/core/domain"
)

// CredentialStore keeps identities in a map for the lifetime of the process.
type CredentialStore struct {
	mu         sync.RWMutex
	identities map[string]domain.Identity
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{identities: make(map[string]domain.Identity)}
}

func (s *CredentialStore) Insert(_ context.Context, identity *domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[identity.Identifier]; exists {
		return domain.ErrIdentityExists
	}
	s.identities[identity.Identifier] = *identity
	return nil
}

func (s *CredentialStore) Find(_ context.Context, identifier string) (*domain.Identity, error) {
	s.mu.RLock()
	identity, ok := s.identities[identifier]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return &identity, nil
}
