package domain

import "time"

// Identity is a registered identifier together with the bcrypt hash of its secret.
type Identity struct {
	Identifier string    `json:"identifier"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"-"`
}

// Credential is a signed, time-limited bearer token bound to one identifier.
type Credential struct {
	Token      string
	Identifier string
	ExpiresAt  time.Time
}
