package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/mathsolver/solver-api/internal/core/domain"
	"github.com/mathsolver/solver-api/internal/core/ports"
)

const (
	defaultTokenTTL   = 24 * time.Hour
	defaultBcryptCost = 10
)

// tokenClaims is the payload of every issued credential.
type tokenClaims struct {
	Identifier string `json:"identifier"`
	jwt.RegisteredClaims
}

// AuthService implements registration, login and token issuance/verification.
type AuthService struct {
	store      ports.CredentialStore
	signingKey []byte
	tokenTTL   time.Duration
	cost       int
	log        zerolog.Logger
	now        func() time.Time

	// dummyHash is compared against when the identifier is unknown so that a
	// failed login costs the same whether or not the identity exists.
	dummyHash []byte
}

// AuthOption customises an AuthService.
type AuthOption func(*AuthService)

// WithBcryptCost sets the bcrypt work factor. Out-of-range values fall back to the default.
func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

func WithAuthLogger(log zerolog.Logger) AuthOption {
	return func(s *AuthService) { s.log = log }
}

func NewAuthService(store ports.CredentialStore, signingKey string, tokenTTL time.Duration, opts ...AuthOption) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	s := &AuthService{
		store:      store,
		signingKey: []byte(signingKey),
		tokenTTL:   tokenTTL,
		cost:       defaultBcryptCost,
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cost)
	if err == nil {
		s.dummyHash = hash
	}
	return s
}

func (s *AuthService) Register(ctx context.Context, identifier, secret string) (*domain.Credential, error) {
	if identifier == "" || secret == "" {
		return nil, domain.ErrEmptyCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	identity := &domain.Identity{
		Identifier: identifier,
		SecretHash: string(hash),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Insert(ctx, identity); err != nil {
		return nil, err
	}

	s.log.Info().Str("identifier", identifier).Msg("identity registered")
	return s.IssueToken(identifier)
}

func (s *AuthService) Login(ctx context.Context, identifier, secret string) (*domain.Credential, error) {
	if identifier == "" || secret == "" {
		return nil, domain.ErrEmptyCredentials
	}

	identity, err := s.store.Find(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			if s.dummyHash != nil {
				_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(secret))
			}
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(identity.SecretHash), []byte(secret)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return s.IssueToken(identity.Identifier)
}

// IssueToken signs a credential for identifier that expires after the configured TTL.
// Every call yields a distinct token; earlier tokens stay valid until their own expiry.
func (s *AuthService) IssueToken(identifier string) (*domain.Credential, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)

	claims := tokenClaims{
		Identifier: identifier,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identifier,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &domain.Credential{
		Token:      signed,
		Identifier: identifier,
		ExpiresAt:  time.Unix(expiresAt.Unix(), 0).UTC(),
	}, nil
}

// VerifyToken checks the signature first and the expiry second. A correctly
// signed token past its expiry is reported as domain.ErrTokenExpired.
func (s *AuthService) VerifyToken(token string) (string, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) { return s.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domain.ErrTokenExpired
		}
		return "", domain.ErrTokenInvalid
	}
	if !parsed.Valid || claims.Identifier == "" {
		return "", domain.ErrTokenInvalid
	}
	return claims.Identifier, nil
}
