// Package jwtx signs and verifies the RS256 tokens this library
// exchanges with the identity provider: service-account assertions and
// impersonation (custom) tokens. The provider mandates RS256 for
// service-account keys, so that is the only algorithm here.
package jwtx

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SigningError reports unusable key material or a failed signing
// operation. It is fatal: retrying with the same key cannot succeed.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return fmt.Sprintf("jwtx: sign: %v", e.Err) }
func (e *SigningError) Unwrap() error { return e.Err }

// Signer is anything that can sign a Claims set into a compact JWT.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	Validate() error
}

// RS256Signer signs claims with an RSA private key, stamping the key id
// into the token header so verifiers can pick the matching public key.
type RS256Signer struct {
	kid string
	key *rsa.PrivateKey
}

// NewSignerRS256 creates an RS256 signer from an already-parsed RSA
// private key. Credential loading owns PEM parsing; by the time a key
// reaches here it is real key material.
func NewSignerRS256(kid string, key *rsa.PrivateKey) (*RS256Signer, error) {
	s := &RS256Signer{kid: kid, key: key}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RS256Signer) Alg() string { return jwt.SigningMethodRS256.Alg() }
func (s *RS256Signer) KID() string { return s.kid }

// Sign turns the claims into a signed compact JWT string.
func (s *RS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	signed, err := t.SignedString(s.key)
	if err != nil {
		return "", &SigningError{Err: err}
	}
	return signed, nil
}

// Validate is a quick sanity check that we actually hold key material.
func (s *RS256Signer) Validate() error {
	if s.key == nil {
		return &SigningError{Err: errors.New("nil RSA key")}
	}
	if s.kid == "" {
		return &SigningError{Err: errors.New("empty key id")}
	}
	return nil
}
