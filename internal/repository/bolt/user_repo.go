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

// UserRepo implements UserRepository on bbolt.
type UserRepo struct{ db *bolt.DB }

// Create inserts a new user. The username index is written in the same
// bbolt transaction as the user record, so the duplicate check is atomic.
func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(usernamesBucket)
		if names.Get([]byte(u.Username)) != nil {
			return errs.ErrAlreadyExists
		}
		raw, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}
		if err := names.Put([]byte(u.Username), u.ID.Bytes()); err != nil {
			return err
		}
		return tx.Bucket(usersBucket).Put(u.ID.Bytes(), raw)
	})
}

// GetByID loads a user by ID.
func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	var u *model.User
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(usersBucket).Get(id.Bytes())
		if raw == nil {
			return errs.ErrNotFound
		}
		u = &model.User{}
		return json.Unmarshal(raw, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByUsername loads a user through the username index.
func (r *UserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	var u *model.User
	err := r.db.View(func(tx *bolt.Tx) error {
		idRaw := tx.Bucket(usernamesBucket).Get([]byte(username))
		if idRaw == nil {
			return errs.ErrNotFound
		}
		raw := tx.Bucket(usersBucket).Get(idRaw)
		if raw == nil {
			return errs.ErrNotFound
		}
		u = &model.User{}
		return json.Unmarshal(raw, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes the user, its username index entry and all owned
// credentials in one transaction (cascade).
func (r *UserRepo) Delete(_ context.Context, id uuid.UUID) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(usersBucket)
		raw := users.Get(id.Bytes())
		if raw == nil {
			return errs.ErrNotFound
		}
		var u model.User
		if err := json.Unmarshal(raw, &u); err != nil {
			return err
		}
		if err := tx.Bucket(usernamesBucket).Delete([]byte(u.Username)); err != nil {
			return err
		}
		if err := users.Delete(id.Bytes()); err != nil {
			return err
		}

		creds := tx.Bucket(credentialsBucket)
		c := creds.Cursor()
		prefix := id.Bytes()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}
