// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/privault/privault/internal/model"
)

// UserRepository provides account storage. Username uniqueness is enforced
// by the backend itself (constraint or single write transaction), never by
// a check-then-insert at a higher layer.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrAlreadyExists when the
	// username is taken.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// Delete removes the user and cascades to all owned credentials.
	Delete(ctx context.Context, id uuid.UUID) error
}
