package jwtx

import (
	"errors"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrIssuer   = errors.New("jwtx: issuer mismatch")
	ErrAudience = errors.New("jwtx: audience mismatch")
)

// RS256Verifier validates tokens this library itself issued, without a
// network round-trip: the key id in the token header selects the
// public key from the KeySet.
type RS256Verifier struct {
	keys   *KeySet
	issuer string
	aud    []string
}

// NewVerifierRS256 creates a verifier. Empty issuer or audience means
// that claim is not enforced.
func NewVerifierRS256(keys *KeySet, issuer string, aud []string) *RS256Verifier {
	return &RS256Verifier{keys: keys, issuer: issuer, aud: aud}
}

// Verify validates the JWT string and returns its parsed Claims.
// Expiry and not-before are enforced by the parser.
func (v *RS256Verifier) Verify(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("jwtx: missing kid")
		}
		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("jwtx: unknown kid %q: %w", kid, err)
		}
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("jwtx: invalid token claims")
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, ErrIssuer
	}
	if len(v.aud) > 0 {
		found := false
		for _, want := range v.aud {
			if slices.Contains(claims.Audience, want) {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrAudience
		}
	}

	return claims, nil
}
