package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/privault/privault/internal/errs"
	"github.com/privault/privault/internal/model"
)

// CredentialRepo implements CredentialRepository using PostgreSQL.
type CredentialRepo struct{ db *DB }

// NewCredentialRepo constructs a credential repository.
func NewCredentialRepo(db *DB) *CredentialRepo { return &CredentialRepo{db: db} }

// Create inserts a new credential row. The (user_id, name) unique index
// keeps names unique within one user's vault.
func (r *CredentialRepo) Create(ctx context.Context, c *model.Credential) error {
	const q = `
INSERT INTO credentials (id, user_id, name, ciphertext, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, c.ID, c.UserID, c.Name, []byte(c.Ciphertext), c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get returns a credential by ID. Rows owned by other users are invisible:
// the user_id predicate turns them into ErrNotFound.
func (r *CredentialRepo) Get(ctx context.Context, userID, id uuid.UUID) (*model.Credential, error) {
	const q = `
SELECT id, user_id, name, ciphertext, created_at, updated_at
FROM credentials WHERE user_id=$1 AND id=$2`
	return r.scanCredential(r.db.Pool.QueryRow(ctx, q, userID, id))
}

// GetByName returns a credential by its per-user unique name.
func (r *CredentialRepo) GetByName(ctx context.Context, userID uuid.UUID, name string) (*model.Credential, error) {
	const q = `
SELECT id, user_id, name, ciphertext, created_at, updated_at
FROM credentials WHERE user_id=$1 AND name=$2`
	return r.scanCredential(r.db.Pool.QueryRow(ctx, q, userID, name))
}

// List returns all credentials of a user ordered by name.
func (r *CredentialRepo) List(ctx context.Context, userID uuid.UUID) ([]model.Credential, error) {
	const q = `
SELECT id, user_id, name, ciphertext, created_at, updated_at
FROM credentials WHERE user_id=$1 ORDER BY name ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Credential
	for rows.Next() {
		var c model.Credential
		var ct []byte
		if err = rows.Scan(&c.ID, &c.UserID, &c.Name, &ct, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Ciphertext = model.Ciphertext(ct)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update rewrites name, ciphertext and updated_at of an existing row.
func (r *CredentialRepo) Update(ctx context.Context, c *model.Credential) error {
	const q = `
UPDATE credentials SET name=$3, ciphertext=$4, updated_at=$5
WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, c.UserID, c.ID, c.Name, []byte(c.Ciphertext), c.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a credential irreversibly.
func (r *CredentialRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	const q = `DELETE FROM credentials WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *CredentialRepo) scanCredential(row pgx.Row) (*model.Credential, error) {
	var c model.Credential
	var ct []byte
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &ct, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	c.Ciphertext = model.Ciphertext(ct)
	return &c, nil
}
