// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Ciphertext is an opaque authenticated-encryption blob. Only the vault
// cipher understands its layout; everything between cipher calls treats it
// as bytes.
type Ciphertext []byte

// User represents an account. Password hash and vault key material are
// independent: compromising one never yields the other.
type User struct {
	ID         uuid.UUID // PK, doubles as the public opaque identifier
	Username   string    // unique
	PwdHash    []byte    // Argon2id(password, SaltAuth)
	SaltAuth   []byte    // per-user auth salt
	KekSalt    []byte    // per-user salt for deriving the key-encryption key
	WrappedKey []byte    // user's vault key, AEAD-wrapped under the KEK
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Credential is a single named secret owned by exactly one user.
// UpdatedAt is the sole conflict-resolution signal for sync and must never
// decrease.
type Credential struct {
	ID         uuid.UUID
	UserID     uuid.UUID // immutable after creation
	Name       string    // non-empty, unique per user (join key for sync)
	Ciphertext Ciphertext
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SyncRecord is the wire shape of one credential exchanged during
// synchronization. Data stays encrypted end to end.
type SyncRecord struct {
	Name         string     `json:"name"`
	Data         Ciphertext `json:"data"`
	LastModified time.Time  `json:"last_modified"`
}

// Now returns the current UTC time truncated to microseconds, the common
// precision of the postgres store, the bolt store and the JSON wire. Using
// it everywhere keeps timestamp comparisons exact across round-trips.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
