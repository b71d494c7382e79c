package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mathsolver/solver-api/internal/core/domain"
)

const (
	keyPrefix = "identity:"

	fieldSecretHash = "secret_hash"
	fieldCreatedAt  = "created_at"
)

// insertIdentity creates the identity hash only if the key does not exist yet.
// Returns 1 when created, 0 when the identifier is taken.
var insertIdentity = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "secret_hash", ARGV[1], "created_at", ARGV[2])
return 1
`)

// CredentialStore keeps one hash per identifier.
// Key format: identity:<identifier> → {secret_hash, created_at (unix seconds)}
type CredentialStore struct {
	client *redis.Client
}

func NewCredentialStore(client *redis.Client) *CredentialStore {
	return &CredentialStore{client: client}
}

// Insert runs as a single script so concurrent registrations of one identifier race safely.
func (s *CredentialStore) Insert(ctx context.Context, identity *domain.Identity) error {
	var createdAt int64
	if !identity.CreatedAt.IsZero() {
		createdAt = identity.CreatedAt.Unix()
	}

	created, err := insertIdentity.Run(ctx, s.client,
		[]string{s.key(identity.Identifier)},
		identity.SecretHash,
		createdAt,
	).Int()
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	if created == 0 {
		return domain.ErrIdentityExists
	}
	return nil
}

func (s *CredentialStore) Find(ctx context.Context, identifier string) (*domain.Identity, error) {
	fields, err := s.client.HGetAll(ctx, s.key(identifier)).Result()
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	hash, ok := fields[fieldSecretHash]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}

	identity := &domain.Identity{Identifier: identifier, SecretHash: hash}
	if raw := fields[fieldCreatedAt]; raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("find identity: bad %s %q: %w", fieldCreatedAt, raw, err)
		}
		if secs != 0 {
			identity.CreatedAt = time.Unix(secs, 0).UTC()
		}
	}
	return identity, nil
}

// Ping reports whether Redis is reachable.
func (s *CredentialStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *CredentialStore) key(identifier string) string {
	return keyPrefix + identifier
}
