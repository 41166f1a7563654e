package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/privault/privault/internal/errs"
	"github.com/privault/privault/internal/model"
	"github.com/privault/privault/internal/repository"
)

// VaultService defines operations over a user's encrypted credentials.
// Payloads are opaque here: callers encrypt before Add/Update and decrypt
// after Get, so plaintext never reaches the store and the cost of a decrypt
// stays visible at the call site.
type VaultService interface {
	// Add stores a new named credential.
	Add(ctx context.Context, userID uuid.UUID, name string, ciphertext model.Ciphertext) (*model.Credential, error)
	// List returns all credentials of the user.
	List(ctx context.Context, userID uuid.UUID) ([]model.Credential, error)
	// Get returns a single credential by ID.
	Get(ctx context.Context, userID, id uuid.UUID) (*model.Credential, error)
	// Update replaces the payload and/or renames the credential. A nil
	// ciphertext keeps the payload, an empty name keeps the name; changing
	// anything bumps updated_at.
	Update(ctx context.Context, userID, id uuid.UUID, ciphertext model.Ciphertext, name string) (*model.Credential, error)
	// Delete removes a credential. Irreversible, no tombstone.
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type VaultServiceImpl struct {
	creds repository.CredentialRepository
	locks *Locks
}

// NewVaultService constructs VaultService. The Locks instance must be the
// one shared with the syncer working against the same store.
func NewVaultService(creds repository.CredentialRepository, locks *Locks) *VaultServiceImpl {
	return &VaultServiceImpl{creds: creds, locks: locks}
}

// Add validates input and stores a new credential.
func (s *VaultServiceImpl) Add(ctx context.Context, userID uuid.UUID, name string, ciphertext model.Ciphertext) (*model.Credential, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("empty userID: %w", errs.ErrInvalidInput)
	}
	if name == "" {
		return nil, fmt.Errorf("empty name: %w", errs.ErrInvalidInput)
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("empty payload: %w", errs.ErrInvalidInput)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	now := model.Now()
	c := &model.Credential{
		ID:         id,
		UserID:     userID,
		Name:       name,
		Ciphertext: ciphertext,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.creds.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns all credentials of the user.
func (s *VaultServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.Credential, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("empty userID: %w", errs.ErrInvalidInput)
	}
	unlock := s.locks.Lock(userID)
	defer unlock()
	return s.creds.List(ctx, userID)
}

// Get returns a single credential by ID.
func (s *VaultServiceImpl) Get(ctx context.Context, userID, id uuid.UUID) (*model.Credential, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return nil, fmt.Errorf("empty userID/id: %w", errs.ErrInvalidInput)
	}
	return s.creds.Get(ctx, userID, id)
}

// Update applies the requested field changes. A no-op update (nothing to
// change) leaves updated_at alone.
func (s *VaultServiceImpl) Update(ctx context.Context, userID, id uuid.UUID, ciphertext model.Ciphertext, name string) (*model.Credential, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return nil, fmt.Errorf("empty userID/id: %w", errs.ErrInvalidInput)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	cur, err := s.creds.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	changed := false
	if len(ciphertext) != 0 {
		cur.Ciphertext = ciphertext
		changed = true
	}
	if name != "" && name != cur.Name {
		cur.Name = name
		changed = true
	}
	if !changed {
		return cur, nil
	}

	cur.UpdatedAt = bumpTimestamp(cur.UpdatedAt)
	if err := s.creds.Update(ctx, cur); err != nil {
		return nil, err
	}
	return cur, nil
}

// Delete removes a credential.
func (s *VaultServiceImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return fmt.Errorf("empty userID/id: %w", errs.ErrInvalidInput)
	}
	unlock := s.locks.Lock(userID)
	defer unlock()
	return s.creds.Delete(ctx, userID, id)
}

// bumpTimestamp returns the current time, nudged forward when the wall
// clock sits at or behind prev. updated_at must never decrease: it is the
// only conflict-resolution signal sync has, and a pull can legitimately
// leave a timestamp ahead of this host's clock.
func bumpTimestamp(prev time.Time) time.Time {
	ts := model.Now()
	if !ts.After(prev) {
		ts = prev.Add(time.Microsecond)
	}
	return ts
}
