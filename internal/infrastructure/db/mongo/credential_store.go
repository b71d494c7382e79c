package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mathsolver/solver-api/internal/core/domain"
)

const identityCollection = "identities"

// CredentialStore persists identities in MongoDB. Uniqueness is enforced by a
// unique index on identifier, created by EnsureIndexes.
type CredentialStore struct {
	coll *mongo.Collection
}

func NewCredentialStore(db *mongo.Database) *CredentialStore {
	return &CredentialStore{coll: db.Collection(identityCollection)}
}

type identityDocument struct {
	Identifier string `bson:"identifier"`
	SecretHash string `bson:"secret_hash"`
	CreatedAt  int64  `bson:"created_at"`
}

// EnsureIndexes creates the unique identifier index. Safe to call on every start.
func (s *CredentialStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identifier", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("identifier_unique"),
	})
	if err != nil {
		return fmt.Errorf("create identity index: %w", err)
	}
	return nil
}

func (s *CredentialStore) Insert(ctx context.Context, identity *domain.Identity) error {
	if _, err := s.coll.InsertOne(ctx, toDocument(identity)); err != nil {
		return insertError(err)
	}
	return nil
}

func (s *CredentialStore) Find(ctx context.Context, identifier string) (*domain.Identity, error) {
	var doc identityDocument
	if err := s.coll.FindOne(ctx, bson.M{"identifier": identifier}).Decode(&doc); err != nil {
		return nil, findError(err)
	}
	return toIdentity(doc), nil
}

// Ping reports whether the MongoDB deployment is reachable.
func (s *CredentialStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}

// insertError maps a unique index violation to ErrIdentityExists.
func insertError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrIdentityExists
	}
	return fmt.Errorf("insert identity: %w", err)
}

func findError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrIdentityNotFound
	}
	return fmt.Errorf("find identity: %w", err)
}

// toDocument stores a zero CreatedAt as 0 so it reads back as the zero time.
func toDocument(identity *domain.Identity) identityDocument {
	doc := identityDocument{
		Identifier: identity.Identifier,
		SecretHash: identity.SecretHash,
	}
	if !identity.CreatedAt.IsZero() {
		doc.CreatedAt = identity.CreatedAt.Unix()
	}
	return doc
}

func toIdentity(doc identityDocument) *domain.Identity {
	identity := &domain.Identity{
		Identifier: doc.Identifier,
		SecretHash: doc.SecretHash,
	}
	if doc.CreatedAt != 0 {
		identity.CreatedAt = time.Unix(doc.CreatedAt, 0).UTC()
	}
	return identity
}
