package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/privault/privault/internal/model"
)

// CredentialRepository stores encrypted credentials scoped by owner. Every
// operation takes the acting user's ID and misses on other users' rows with
// errs.ErrNotFound. Timestamps are persisted exactly as given: the service
// layer owns the clock, which lets sync carry remote modification times
// through unchanged.
type CredentialRepository interface {
	// Create inserts a new credential.
	Create(ctx context.Context, c *model.Credential) error
	// Get returns a credential by ID within the user's scope.
	Get(ctx context.Context, userID, id uuid.UUID) (*model.Credential, error)
	// GetByName returns a credential by its per-user unique name.
	GetByName(ctx context.Context, userID uuid.UUID, name string) (*model.Credential, error)
	// List returns all credentials of the user.
	List(ctx context.Context, userID uuid.UUID) ([]model.Credential, error)
	// Update rewrites name, ciphertext and updated_at of an existing row,
	// matched by (UserID, ID).
	Update(ctx context.Context, c *model.Credential) error
	// Delete removes a credential. No tombstone is kept.
	Delete(ctx context.Context, userID, id uuid.UUID) error
}
