package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/privault/privault/internal/crypto"
	"github.com/privault/privault/internal/errs"
	"github.com/privault/privault/internal/limiter"
	"github.com/privault/privault/internal/model"
	"github.com/privault/privault/internal/repository"
)

type fakeUsers struct {
	byName map[string]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byName == nil {
		f.byName = map[string]*model.User{}
	}
	if _, exists := f.byName[u.Username]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byName[u.Username] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byName {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	for name, u := range f.byName {
		if u.ID == id {
			delete(f.byName, name)
			return nil
		}
	}
	return errs.ErrNotFound
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return nil
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, nil
}

func TestAuth_Register_Basics(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	s := NewAuthService(users, &fakeLimiter{})
	ctx := context.Background()

	if _, err := s.Register(ctx, "", "", nil); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput on empty username/password, got %v", err)
	}

	u, err := s.Register(ctx, "alice", "pwd", nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == uuid.Nil {
		t.Fatalf("empty user id")
	}
	if len(u.SaltAuth) != pkgcrypto.SaltLen || len(u.KekSalt) == 0 || len(u.WrappedKey) == 0 {
		t.Fatalf("missing salts/key material")
	}
	if !pkgcrypto.VerifyPassword([]byte("pwd"), u.SaltAuth, u.PwdHash) {
		t.Fatalf("stored hash does not verify")
	}
	if bytes.Contains(u.PwdHash, []byte("pwd")) {
		t.Fatalf("password visible in hash")
	}

	if _, err := s.Register(ctx, "alice", "pwd2", nil); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on duplicate username, got %v", err)
	}

	users.createErr = errors.New("boom")
	if _, err := s.Register(ctx, "bob", "pwd", nil); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

func TestAuth_Register_StoresProvidedKeyMaterial(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	s := NewAuthService(users, &fakeLimiter{})

	km := &KeyMaterial{KekSalt: []byte("client-salt-----"), WrappedKey: []byte("client-wrapped")}
	u, err := s.Register(context.Background(), "alice", "pwd", km)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !bytes.Equal(u.KekSalt, km.KekSalt) || !bytes.Equal(u.WrappedKey, km.WrappedKey) {
		t.Fatalf("provided key material must be stored verbatim")
	}

	bad := &KeyMaterial{KekSalt: nil, WrappedKey: []byte("w")}
	if _, err := s.Register(context.Background(), "bob", "pwd", bad); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput on partial key material, got %v", err)
	}
}

func TestAuth_LoginWithIP_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{byName: map[string]*model.User{}}
	lim := &fakeLimiter{allowOK: true}
	s := NewAuthService(users, lim)
	ctx := context.Background()

	if _, err := s.Register(ctx, "alice", "correct", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	u, err := s.LoginWithIP(ctx, "alice", "correct", "1.2.3.4")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("wrong user: %q", u.Username)
	}
	if lim.successCalls != 1 {
		t.Fatalf("limiter Success not called")
	}

	if _, err := s.LoginWithIP(ctx, "alice", "wrong", "1.2.3.4"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}
	if lim.failureCalls != 1 {
		t.Fatalf("limiter Failure not called")
	}

	// unknown user looks exactly like a wrong password
	if _, err := s.LoginWithIP(ctx, "nobody", "x", "1.2.3.4"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for unknown user, got %v", err)
	}

	lim.allowOK = false
	if _, err := s.LoginWithIP(ctx, "alice", "correct", "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited when blocked, got %v", err)
	}

	lim.allowOK = true
	lim.failBlocked = true
	if _, err := s.LoginWithIP(ctx, "alice", "wrong", "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited at failure threshold, got %v", err)
	}
}

func TestUnlockVaultKey(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	s := NewAuthService(users, &fakeLimiter{allowOK: true})
	ctx := context.Background()

	u, err := s.Register(ctx, "alice", "master", nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	key, err := UnlockVaultKey(u, "master")
	if err != nil {
		t.Fatalf("UnlockVaultKey: %v", err)
	}
	if len(key) == 0 {
		t.Fatalf("empty vault key")
	}

	key2, err := UnlockVaultKey(u, "master")
	if err != nil || !bytes.Equal(key, key2) {
		t.Fatalf("unlock not deterministic: %v", err)
	}

	if _, err := UnlockVaultKey(u, "wrong"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}
}

// The password hash must not unlock the vault: the two secrets are
// independent key material.
func TestPasswordHashDoesNotYieldVaultKey(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	s := NewAuthService(users, &fakeLimiter{})

	u, err := s.Register(context.Background(), "alice", "master", nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := UnlockVaultKey(u, string(u.PwdHash)); err == nil {
		t.Fatalf("password hash must not unwrap the vault key")
	}
}
