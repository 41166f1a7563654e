// Package bolt contains bbolt implementations of repository interfaces,
// backing the local vault file used by the CLI client.
package bolt

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	usersBucket       = []byte("users")       // user id -> json(User)
	usernamesBucket   = []byte("usernames")   // username -> user id
	credentialsBucket = []byte("credentials") // user id || credential id -> json(Credential)
)

// Store owns the bbolt database file. Repositories share one Store.
type Store struct {
	db *bolt.DB
}

// Open opens or creates a vault database at path and ensures the bucket
// structure exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open vault db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{usersBucket, usernamesBucket, credentialsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database file.
func (s *Store) Close() error { return s.db.Close() }

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepo { return &UserRepo{db: s.db} }

// Credentials returns the credential repository view of the store.
func (s *Store) Credentials() *CredentialRepo { return &CredentialRepo{db: s.db} }
