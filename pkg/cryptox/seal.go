// Package cryptox provides at-rest protection for persisted refresh
// tokens. Refresh tokens are long-lived credentials, so stores that
// write them to disk can seal them under a caller-supplied passphrase.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. These follow the RFC 9106 low-memory profile,
// which is plenty for a local token store.
const (
	saltLength  = 16
	iterations  = 3
	memory      = 64 * 1024
	parallelism = 4
	keyLength   = 32
)

// ErrSealedTooShort reports a sealed blob that cannot possibly contain
// salt, nonce and ciphertext.
var ErrSealedTooShort = errors.New("cryptox: sealed data too short")

// deriveKey stretches a passphrase into an AES-256 key using Argon2id
// with the given salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, iterations, memory, parallelism, keyLength)
}

// Seal encrypts plaintext under a passphrase-derived key using
// AES-256-GCM. The output layout is [16-byte salt][12-byte nonce][ciphertext+tag],
// so a sealed blob is self-contained and Open needs only the passphrase.
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("cryptox: generate salt: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}

	out := make([]byte, 0, saltLength+gcm.NonceSize()+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. A wrong passphrase or any
// modification of the blob fails authentication.
func Open(sealed []byte, passphrase string) ([]byte, error) {
	if len(sealed) < saltLength {
		return nil, ErrSealedTooShort
	}
	salt, rest := sealed[:saltLength], sealed[saltLength:]

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}

	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrSealedTooShort
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: open sealed data: %w", err)
	}
	return plaintext, nil
}
