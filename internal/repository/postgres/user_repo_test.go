package postgres

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/privault/privault/internal/errs"
	"github.com/privault/privault/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func testUser() *model.User {
	now := model.Now()
	return &model.User{
		ID:         uuid.Must(uuid.NewV4()),
		Username:   "alice",
		PwdHash:    []byte("h"),
		SaltAuth:   []byte("s"),
		KekSalt:    []byte("k"),
		WrappedKey: []byte("w"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestUserRepo_Create_OK_and_DuplicateUsername(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := testUser()

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, u.Username, u.PwdHash, u.SaltAuth, u.KekSalt, u.WrappedKey, u.CreatedAt, u.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, u))

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, u.Username, u.PwdHash, u.SaltAuth, u.KekSalt, u.WrappedKey, u.CreatedAt, u.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, u), errs.ErrAlreadyExists)
}

func userRows(u *model.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "username", "pwd_hash", "salt_auth", "kek_salt", "wrapped_key", "created_at", "updated_at"}).
		AddRow(u.ID, u.Username, u.PwdHash, u.SaltAuth, u.KekSalt, u.WrappedKey, u.CreatedAt, u.UpdatedAt)
}

func TestUserRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := testUser()

	mock.ExpectQuery(`SELECT id, username, pwd_hash, salt_auth, kek_salt, wrapped_key, created_at, updated_at FROM users WHERE id=\$1`).
		WithArgs(u.ID).
		WillReturnRows(userRows(u))
	got, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, u.WrappedKey, got.WrappedKey)

	mock.ExpectQuery(`SELECT id, username, pwd_hash, salt_auth, kek_salt, wrapped_key, created_at, updated_at FROM users WHERE id=\$1`).
		WithArgs(u.ID).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByID(ctx, u.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_GetByUsername(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := testUser()

	mock.ExpectQuery(`SELECT id, username, pwd_hash, salt_auth, kek_salt, wrapped_key, created_at, updated_at FROM users WHERE username=\$1`).
		WithArgs(u.Username).
		WillReturnRows(userRows(u))
	got, err := r.GetByUsername(ctx, u.Username)
	require.NoError(t, err)
	require.Equal(t, u.Username, got.Username)

	mock.ExpectQuery(`SELECT id, username, pwd_hash, salt_auth, kek_salt, wrapped_key, created_at, updated_at FROM users WHERE username=\$1`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`DELETE FROM users WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Delete(ctx, id))

	mock.ExpectExec(`DELETE FROM users WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.Delete(ctx, id), errs.ErrNotFound)
}
