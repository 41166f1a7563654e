// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrInvalidInput indicates an empty or malformed secret, name or payload,
	// rejected before any crypto or storage operation runs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the requested entity does not exist. Cross-user
	// lookups surface this same error so ownership never leaks.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDecryption indicates ciphertext authentication failure or a wrong key.
	ErrDecryption = errors.New("decryption failed")

	// ErrTransport indicates a network or remote-side failure during sync.
	ErrTransport = errors.New("transport failure")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrConflict indicates a concurrent update lost the race (stale base state).
	ErrConflict = errors.New("conflict")
)
