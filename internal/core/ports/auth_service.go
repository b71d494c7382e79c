package ports

import (
	"context"

	"github.com/mathsolver/solver-api/internal/core/domain"
)

// TokenVerifier resolves a bearer token back to the identifier it was issued for.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

type AuthService interface {
	TokenVerifier
	Register(ctx context.Context, identifier, secret string) (*domain.Credential, error)
	Login(ctx context.Context, identifier, secret string) (*domain.Credential, error)
	IssueToken(identifier string) (*domain.Credential, error)
}
