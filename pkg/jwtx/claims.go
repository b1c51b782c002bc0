package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emberworks/fireside/pkg/idx"
)

// CustomTokenAudience is the audience the provider requires on
// impersonation tokens.
const CustomTokenAudience = "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit"

// Token lifetime constants. The identity provider caps self-signed
// assertions at one hour; asking for more gets the exchange rejected.
const (
	// AssertionLifetime is the lifetime claimed on signed assertions.
	AssertionLifetime = time.Hour

	// CustomTokenLifetime is the lifetime claimed on impersonation
	// (custom) tokens. They only need to survive the immediate
	// exchange, but the provider accepts up to an hour.
	CustomTokenLifetime = time.Hour
)

// Claims are the claim set carried by signed assertions and custom
// tokens. Scope is only set on assertions, UID only on custom tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Scope is the space-delimited OAuth2 scope string requested by a
	// service-account assertion.
	Scope string `json:"scope,omitempty"`

	// UID names the user a custom token vouches for.
	UID string `json:"uid,omitempty"`
}

// NewAssertionClaims builds the claim set for a service-account
// assertion: the credential's client email is both issuer and subject,
// the audience is the token endpoint the assertion will be posted to.
func NewAssertionClaims(clientEmail, scope, audience string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    clientEmail,
			Subject:   clientEmail,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AssertionLifetime)),
			ID:        idx.New().String(),
		},
		Scope: scope,
	}
}

// NewCustomTokenClaims builds the claim set for an impersonation token:
// the service account vouches for uid as the subject of the resulting
// user session.
func NewCustomTokenClaims(clientEmail, uid, audience string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    clientEmail,
			Subject:   clientEmail,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(CustomTokenLifetime)),
			ID:        idx.New().String(),
		},
		UID: uid,
	}
}
