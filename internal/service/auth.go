// Package service contains application services for authentication,
// credential storage and synchronization.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/privault/privault/internal/crypto"
	"github.com/privault/privault/internal/crypto/vaultcrypto"
	"github.com/privault/privault/internal/errs"
	"github.com/privault/privault/internal/limiter"
	"github.com/privault/privault/internal/model"
	"github.com/privault/privault/internal/repository"
)

// KeyMaterial is client-prepared vault key material: the KEK salt and the
// vault key wrapped under the KEK. When a caller supplies it at
// registration, the service stores it verbatim and never sees the unwrapped
// key.
type KeyMaterial struct {
	KekSalt    []byte
	WrappedKey []byte
}

// AuthService defines registration and authentication operations.
type AuthService interface {
	// Register creates a new user with salted password hashing. A nil km
	// means "generate fresh vault key material here" (local vault); a
	// non-nil km is stored as provided (remote registration).
	Register(ctx context.Context, username, password string, km *KeyMaterial) (*model.User, error)
	// LoginWithIP applies rate-limiting and authenticates the user.
	LoginWithIP(ctx context.Context, username, password, ip string) (*model.User, error)
}

type AuthServiceImpl struct {
	users repository.UserRepository
	lim   limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, lim: lim}
}

// Register creates a new user record with per-user salts. Username
// uniqueness is left to the repository's atomic insert.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string, km *KeyMaterial) (*model.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("empty username/password: %w", errs.ErrInvalidInput)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	saltAuth, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		return nil, err
	}

	if km == nil {
		if km, err = NewKeyMaterial(password); err != nil {
			return nil, err
		}
	}
	if len(km.KekSalt) == 0 || len(km.WrappedKey) == 0 {
		return nil, fmt.Errorf("empty key material: %w", errs.ErrInvalidInput)
	}

	now := model.Now()
	u := &model.User{
		ID:         uid,
		Username:   username,
		PwdHash:    pkgcrypto.HashPassword([]byte(password), saltAuth),
		SaltAuth:   saltAuth,
		KekSalt:    km.KekSalt,
		WrappedKey: km.WrappedKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// LoginWithIP authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (*model.User, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return nil, errs.ErrRateLimited
		}
		// lookup misses and wrong passwords are indistinguishable
		return nil, errs.ErrUnauthorized
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, username, ipHash)
	return u, nil
}

// NewKeyMaterial generates a fresh vault key and wraps it under a KEK
// derived from the master password.
func NewKeyMaterial(password string) (*KeyMaterial, error) {
	kek, kekSalt, err := vaultcrypto.DeriveKey(password, nil)
	if err != nil {
		return nil, err
	}
	vk, err := vaultcrypto.NewVaultKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := vaultcrypto.WrapKey(kek, vk)
	if err != nil {
		return nil, err
	}
	return &KeyMaterial{KekSalt: kekSalt, WrappedKey: wrapped}, nil
}

// UnlockVaultKey recovers the user's vault key from the master password.
// A wrong password surfaces as ErrUnauthorized, indistinguishable from
// corrupted key material.
func UnlockVaultKey(u *model.User, password string) ([]byte, error) {
	kek, _, err := vaultcrypto.DeriveKey(password, u.KekSalt)
	if err != nil {
		return nil, err
	}
	key, err := vaultcrypto.UnwrapKey(kek, u.WrappedKey)
	if err != nil {
		if errors.Is(err, errs.ErrDecryption) {
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}
	return key, nil
}
