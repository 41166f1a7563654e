// Package vaultcrypto contains primitives for vault key derivation, key
// wrapping and payload encryption.
//
// Every user owns a random 32-byte vault key. It never touches storage in
// the clear: it is AEAD-wrapped under a key-encryption key (KEK) derived
// from the master password. Credential payloads are sealed under the
// unwrapped vault key with XChaCha20-Poly1305, a fresh random nonce per
// call, nonce prefixed to the ciphertext.
package vaultcrypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/privault/privault/internal/errs"
)

// Params
const (
	KeyLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKey derives a 32-byte key from secret via Argon2id. A nil salt means
// "generate a fresh 16-byte one"; the salt actually used is returned so the
// caller can persist it. Same (secret, salt) always reproduces the same key.
func DeriveKey(secret string, salt []byte) (key, usedSalt []byte, err error) {
	if secret == "" {
		return nil, nil, fmt.Errorf("derive key: empty secret: %w", errs.ErrInvalidInput)
	}
	if salt == nil {
		if salt, err = randBytes(SaltLen); err != nil {
			return nil, nil, err
		}
	}
	return argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, KeyLen), salt, nil
}

// NewVaultKey returns a fresh random vault key.
func NewVaultKey() ([]byte, error) {
	return randBytes(KeyLen)
}

// WrapKey encrypts the vault key with the KEK using XChaCha20-Poly1305 and a
// random nonce. Output layout: nonce || sealed key.
func WrapKey(kek, vaultKey []byte) ([]byte, error) {
	return Encrypt(kek, vaultKey)
}

// UnwrapKey decrypts a wrapped vault key. A wrong KEK (wrong password)
// surfaces as ErrDecryption, indistinguishable from corrupted material.
func UnwrapKey(kek, wrapped []byte) ([]byte, error) {
	return Decrypt(kek, wrapped)
}

// Encrypt seals plaintext under key. Each call draws a fresh nonce, so equal
// plaintexts produce different ciphertexts.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := randBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, nil)...)
	return out, nil
}

// Decrypt opens a blob produced by Encrypt. Truncated, tampered or
// wrong-key input fails with ErrDecryption, never with garbage plaintext.
func Decrypt(key, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("blob too short: %w", errs.ErrDecryption)
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("open: %w", errs.ErrDecryption)
	}
	return pt, nil
}

// EncryptString seals a UTF-8 payload.
func EncryptString(key []byte, plaintext string) ([]byte, error) {
	return Encrypt(key, []byte(plaintext))
}

// DecryptString opens a blob sealed by EncryptString.
func DecryptString(key, blob []byte) (string, error) {
	pt, err := Decrypt(key, blob)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
