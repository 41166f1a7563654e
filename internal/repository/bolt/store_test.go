package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/privault/privault/internal/errs"
	"github.com/privault/privault/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newUser(name string) *model.User {
	now := model.Now()
	return &model.User{
		ID:         uuid.Must(uuid.NewV4()),
		Username:   name,
		PwdHash:    []byte("hash"),
		SaltAuth:   []byte("salt-auth-16byte"),
		KekSalt:    []byte("kek-salt-16bytes"),
		WrappedKey: []byte("wrapped"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newCred(userID uuid.UUID, name string) *model.Credential {
	now := model.Now()
	return &model.Credential{
		ID:         uuid.Must(uuid.NewV4()),
		UserID:     userID,
		Name:       name,
		Ciphertext: model.Ciphertext("opaque " + name),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestUserRepo_CreateAndLookup(t *testing.T) {
	s := newStore(t)
	users := s.Users()
	ctx := context.Background()

	u := newUser("alice")
	require.NoError(t, users.Create(ctx, u))

	got, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, u.WrappedKey, got.WrappedKey)
	require.True(t, got.CreatedAt.Equal(u.CreatedAt), "timestamps must round-trip exactly")

	byID, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Username, byID.Username)

	_, err = users.GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_DuplicateUsernameRejected(t *testing.T) {
	s := newStore(t)
	users := s.Users()
	ctx := context.Background()

	require.NoError(t, users.Create(ctx, newUser("alice")))
	err := users.Create(ctx, newUser("alice"))
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestUserRepo_DeleteCascades(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	users, creds := s.Users(), s.Credentials()

	u := newUser("alice")
	require.NoError(t, users.Create(ctx, u))
	require.NoError(t, creds.Create(ctx, newCred(u.ID, "github")))
	require.NoError(t, creds.Create(ctx, newCred(u.ID, "aws")))

	require.NoError(t, users.Delete(ctx, u.ID))

	_, err := users.GetByUsername(ctx, "alice")
	require.ErrorIs(t, err, errs.ErrNotFound)
	list, err := creds.List(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, list)

	// username becomes available again
	require.NoError(t, users.Create(ctx, newUser("alice")))
}

func TestCredentialRepo_CRUD(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	creds := s.Credentials()
	owner := uuid.Must(uuid.NewV4())

	c := newCred(owner, "github")
	require.NoError(t, creds.Create(ctx, c))

	got, err := creds.Get(ctx, owner, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.Ciphertext, got.Ciphertext)

	byName, err := creds.GetByName(ctx, owner, "github")
	require.NoError(t, err)
	require.Equal(t, c.ID, byName.ID)

	got.Ciphertext = model.Ciphertext("rotated")
	got.UpdatedAt = model.Now()
	require.NoError(t, creds.Update(ctx, got))

	again, err := creds.Get(ctx, owner, c.ID)
	require.NoError(t, err)
	require.Equal(t, model.Ciphertext("rotated"), again.Ciphertext)
	require.True(t, again.UpdatedAt.Equal(got.UpdatedAt))

	require.NoError(t, creds.Delete(ctx, owner, c.ID))
	_, err = creds.Get(ctx, owner, c.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorIs(t, creds.Delete(ctx, owner, c.ID), errs.ErrNotFound)
}

func TestCredentialRepo_DuplicateNamePerUser(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	creds := s.Credentials()
	owner := uuid.Must(uuid.NewV4())
	other := uuid.Must(uuid.NewV4())

	require.NoError(t, creds.Create(ctx, newCred(owner, "github")))
	require.ErrorIs(t, creds.Create(ctx, newCred(owner, "github")), errs.ErrAlreadyExists)

	// same name under another user is fine
	require.NoError(t, creds.Create(ctx, newCred(other, "github")))
}

func TestCredentialRepo_CrossUserIsolation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	creds := s.Credentials()
	alice := uuid.Must(uuid.NewV4())
	bob := uuid.Must(uuid.NewV4())

	c := newCred(alice, "github")
	require.NoError(t, creds.Create(ctx, c))

	_, err := creds.Get(ctx, bob, c.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	stolen := *c
	stolen.UserID = bob
	require.ErrorIs(t, creds.Update(ctx, &stolen), errs.ErrNotFound)
	require.ErrorIs(t, creds.Delete(ctx, bob, c.ID), errs.ErrNotFound)

	list, err := creds.List(ctx, bob)
	require.NoError(t, err)
	require.Empty(t, list)
}
