package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/privault/privault/internal/errs"
	"github.com/privault/privault/internal/model"
)

// CredentialRepo implements CredentialRepository on bbolt. Keys are
// user id || credential id, so one cursor prefix covers a user's vault.
type CredentialRepo struct{ db *bolt.DB }

func credKey(userID, id uuid.UUID) []byte {
	k := make([]byte, 0, 32)
	k = append(k, userID.Bytes()...)
	k = append(k, id.Bytes()...)
	return k
}

// Create inserts a new credential. Name uniqueness within the user's vault
// is checked inside the same write transaction.
func (r *CredentialRepo) Create(_ context.Context, c *model.Credential) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		if found, _ := findByName(b, c.UserID, c.Name); found != nil {
			return errs.ErrAlreadyExists
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal credential: %w", err)
		}
		return b.Put(credKey(c.UserID, c.ID), raw)
	})
}

// Get returns a credential by ID within the user's scope.
func (r *CredentialRepo) Get(_ context.Context, userID, id uuid.UUID) (*model.Credential, error) {
	var c *model.Credential
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(credentialsBucket).Get(credKey(userID, id))
		if raw == nil {
			return errs.ErrNotFound
		}
		c = &model.Credential{}
		return json.Unmarshal(raw, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByName returns a credential by its per-user unique name.
func (r *CredentialRepo) GetByName(_ context.Context, userID uuid.UUID, name string) (*model.Credential, error) {
	var c *model.Credential
	err := r.db.View(func(tx *bolt.Tx) error {
		found, err := findByName(tx.Bucket(credentialsBucket), userID, name)
		if err != nil {
			return err
		}
		if found == nil {
			return errs.ErrNotFound
		}
		c = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns all credentials of the user.
func (r *CredentialRepo) List(_ context.Context, userID uuid.UUID) ([]model.Credential, error) {
	var out []model.Credential
	err := r.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(credentialsBucket).Cursor()
		prefix := userID.Bytes()
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			var c model.Credential
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update rewrites an existing credential, matched by (UserID, ID). A rename
// onto a name held by another credential of the same user is rejected.
func (r *CredentialRepo) Update(_ context.Context, c *model.Credential) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		key := credKey(c.UserID, c.ID)
		if b.Get(key) == nil {
			return errs.ErrNotFound
		}
		if found, _ := findByName(b, c.UserID, c.Name); found != nil && found.ID != c.ID {
			return errs.ErrAlreadyExists
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal credential: %w", err)
		}
		return b.Put(key, raw)
	})
}

// Delete removes a credential irreversibly.
func (r *CredentialRepo) Delete(_ context.Context, userID, id uuid.UUID) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		key := credKey(userID, id)
		if b.Get(key) == nil {
			return errs.ErrNotFound
		}
		return b.Delete(key)
	})
}

func findByName(b *bolt.Bucket, userID uuid.UUID, name string) (*model.Credential, error) {
	cur := b.Cursor()
	prefix := userID.Bytes()
	for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
		var c model.Credential
		if err := json.Unmarshal(v, &c); err != nil {
			return nil, err
		}
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, nil
}
