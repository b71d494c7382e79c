package ports

import (
	"context"

	"github.com/mathsolver/solver-api/internal/core/domain"
)

// CredentialStore persists identities. Insert must fail with
// domain.ErrIdentityExists on an exact identifier match, Find with
// domain.ErrIdentityNotFound when nothing matches.
type CredentialStore interface {
	Insert(ctx context.Context, identity *domain.Identity) error
	Find(ctx context.Context, identifier string) (*domain.Identity, error)
}
