package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mathsolver/solver-api/internal/core/domain"
)

type stubCredentialStore struct {
	identities map[string]*domain.Identity
	findErr    error
}

func newStubCredentialStore() *stubCredentialStore {
	return &stubCredentialStore{identities: make(map[string]*domain.Identity)}
}

func (r *stubCredentialStore) Insert(_ context.Context, identity *domain.Identity) error {
	if _, exists := r.identities[identity.Identifier]; exists {
		return domain.ErrIdentityExists
	}
	clone := *identity
	r.identities[identity.Identifier] = &clone
	return nil
}

func (r *stubCredentialStore) Find(_ context.Context, identifier string) (*domain.Identity, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	identity, ok := r.identities[identifier]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	clone := *identity
	return &clone, nil
}

func newTestAuthService(store *stubCredentialStore) *AuthService {
	return NewAuthService(store, "secret", time.Hour, WithBcryptCost(bcrypt.MinCost))
}

func TestAuthService_Register_Success(t *testing.T) {
	store := newStubCredentialStore()
	svc := newTestAuthService(store)

	cred, err := svc.Register(context.Background(), "alice", "pass123")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if cred.Token == "" || cred.Identifier != "alice" {
		t.Fatalf("unexpected credential: %+v", cred)
	}

	stored := store.identities["alice"]
	if stored == nil {
		t.Fatalf("identity not stored")
	}
	if stored.SecretHash == "pass123" {
		t.Fatalf("expected secret to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.SecretHash), []byte("pass123")); err != nil {
		t.Fatalf("stored hash does not match secret: %v", err)
	}
}

func TestAuthService_Register_EmptyInput(t *testing.T) {
	svc := newTestAuthService(newStubCredentialStore())

	if _, err := svc.Register(context.Background(), "", "pass"); err != domain.ErrEmptyCredentials {
		t.Fatalf("expected ErrEmptyCredentials, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "bob", ""); err != domain.ErrEmptyCredentials {
		t.Fatalf("expected ErrEmptyCredentials, got %v", err)
	}
}

func TestAuthService_Register_DuplicateRegardlessOfSecret(t *testing.T) {
	svc := newTestAuthService(newStubCredentialStore())

	if _, err := svc.Register(context.Background(), "bob", "pass"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	for _, secret := range []string{"pass", "other"} {
		if _, err := svc.Register(context.Background(), "bob", secret); err != domain.ErrIdentityExists {
			t.Fatalf("expected ErrIdentityExists, got %v", err)
		}
	}
	if _, err := svc.Register(context.Background(), "Bob", "pass"); err != nil {
		t.Fatalf("identifiers are case-sensitive, got %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	svc := newTestAuthService(newStubCredentialStore())

	if _, err := svc.Register(context.Background(), "carol", "s3cret"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	cred, err := svc.Login(context.Background(), "carol", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(cred.Token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims["identifier"] != "carol" || claims["sub"] != "carol" {
		t.Fatalf("unexpected claims: %v", claims)
	}
	if _, ok := claims["exp"]; !ok {
		t.Fatalf("expected exp claim")
	}
}

func TestAuthService_Login_UnknownAndWrongSecretAreIndistinguishable(t *testing.T) {
	svc := newTestAuthService(newStubCredentialStore())

	_, _ = svc.Register(context.Background(), "dave", "goodpass")

	_, wrongSecret := svc.Login(context.Background(), "dave", "badpass")
	_, unknown := svc.Login(context.Background(), "ghost", "badpass")

	if wrongSecret != domain.ErrInvalidCredentials || unknown != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", wrongSecret, unknown)
	}
}

func TestAuthService_Login_EmptyInput(t *testing.T) {
	svc := newTestAuthService(newStubCredentialStore())

	if _, err := svc.Login(context.Background(), "", "x"); err != domain.ErrEmptyCredentials {
		t.Fatalf("expected ErrEmptyCredentials, got %v", err)
	}
}

func TestAuthService_Login_StoreFailure(t *testing.T) {
	store := newStubCredentialStore()
	store.findErr = errors.New("connection refused")
	svc := newTestAuthService(store)

	_, err := svc.Login(context.Background(), "erin", "pw")
	if err == nil || errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected store failure to propagate, got %v", err)
	}
}

func TestAuthService_VerifyToken_RoundTrip(t *testing.T) {
	svc := newTestAuthService(newStubCredentialStore())

	cred, err := svc.IssueToken("frank")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	identifier, err := svc.VerifyToken(cred.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identifier != "frank" {
		t.Fatalf("expected frank, got %q", identifier)
	}
	if d := time.Until(cred.ExpiresAt); d < 59*time.Minute || d > time.Hour {
		t.Fatalf("unexpected expiry %s", cred.ExpiresAt)
	}
}

func TestAuthService_IssueToken_IndependentTokens(t *testing.T) {
	svc := newTestAuthService(newStubCredentialStore())

	first, _ := svc.IssueToken("gina")
	second, _ := svc.IssueToken("gina")
	if first.Token == second.Token {
		t.Fatalf("expected two distinct tokens")
	}
	for _, cred := range []string{first.Token, second.Token} {
		if id, err := svc.VerifyToken(cred); err != nil || id != "gina" {
			t.Fatalf("token should verify on its own: %v", err)
		}
	}
}

func TestAuthService_VerifyToken_Expired(t *testing.T) {
	svc := newTestAuthService(newStubCredentialStore())

	cred, _ := svc.IssueToken("hank")
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := svc.VerifyToken(cred.Token); err != domain.ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAuthService_VerifyToken_Invalid(t *testing.T) {
	svc := newTestAuthService(newStubCredentialStore())
	other := NewAuthService(newStubCredentialStore(), "other-secret", time.Hour, WithBcryptCost(bcrypt.MinCost))

	foreign, _ := other.IssueToken("ivy")
	if _, err := svc.VerifyToken(foreign.Token); err != domain.ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for wrong key, got %v", err)
	}
	if _, err := svc.VerifyToken("not.a.jwt"); err != domain.ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"identifier": "ivy",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := svc.VerifyToken(unsigned); err != domain.ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for alg none, got %v", err)
	}
}

func TestAuthService_VerifyToken_ExpiredWithWrongSignatureIsInvalid(t *testing.T) {
	svc := newTestAuthService(newStubCredentialStore())
	other := NewAuthService(newStubCredentialStore(), "other-secret", time.Millisecond, WithBcryptCost(bcrypt.MinCost))

	cred, _ := other.IssueToken("jack")
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	if _, err := svc.VerifyToken(cred.Token); err != domain.ErrTokenInvalid {
		t.Fatalf("signature must be checked before expiry, got %v", err)
	}
}
