package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/emberworks/fireside/pkg/credentials"
	"github.com/emberworks/fireside/pkg/jwtx"
	"github.com/emberworks/fireside/pkg/tokenx"
)

// DefaultScopes are the OAuth2 scopes requested on service-account
// assertions: document database access, identity toolkit
// administration, and the email scope the token endpoint expects.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/datastore",
	"https://www.googleapis.com/auth/identitytoolkit",
	"https://www.googleapis.com/auth/userinfo.email",
}

// ServiceAccountSession authenticates as the service account itself.
// The provider issues no refresh token for this flow; a stale bearer
// means re-signing a fresh assertion and exchanging it again.
//
// Safe for concurrent use; the internal lock serializes refreshes.
type ServiceAccountSession struct {
	cred      *credentials.Credentials
	exchanger *tokenx.Exchanger
	signer    *jwtx.RS256Signer
	scope     string

	mu sync.RWMutex
	tk bearer
}

var _ AuthBearer = (*ServiceAccountSession)(nil)

// NewServiceAccount creates a session against the provider's
// production endpoints. The first bearer token is fetched eagerly so
// construction fails on bad credentials rather than on first use.
func NewServiceAccount(ctx context.Context, cred *credentials.Credentials) (*ServiceAccountSession, error) {
	return NewServiceAccountWith(ctx, cred, tokenx.New(tokenx.DefaultEndpoints()))
}

// NewServiceAccountWith is NewServiceAccount with a caller-configured
// exchanger (custom endpoints, HTTP client, retry or rate limits).
func NewServiceAccountWith(ctx context.Context, cred *credentials.Credentials, x *tokenx.Exchanger) (*ServiceAccountSession, error) {
	signer, err := jwtx.NewSignerRS256(cred.PrivateKeyID, cred.PrivateKey)
	if err != nil {
		return nil, err
	}

	s := &ServiceAccountSession{
		cred:      cred,
		exchanger: x,
		signer:    signer,
		scope:     strings.Join(DefaultScopes, " "),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ProjectID returns the credential's project id.
func (s *ServiceAccountSession) ProjectID() string { return s.cred.ProjectID }

// Bearer returns the cached access token, signing and exchanging a new
// assertion first if the cached one is stale. A failed exchange leaves
// the previous state untouched and surfaces the typed error.
func (s *ServiceAccountSession) Bearer(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.tk.fresh(time.Now()) {
		token := s.tk.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if s.tk.fresh(time.Now()) {
		return s.tk.accessToken, nil
	}

	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.tk.accessToken, nil
}

// AccessToken returns the cached token without any freshness check.
func (s *ServiceAccountSession) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tk.accessToken
}

func (s *ServiceAccountSession) refreshLocked(ctx context.Context) error {
	now := time.Now().UTC()
	claims := jwtx.NewAssertionClaims(s.cred.ClientEmail, s.scope, s.exchanger.Endpoints.TokenURL, now)

	assertion, err := s.signer.Sign(claims)
	if err != nil {
		return err
	}

	res, err := s.exchanger.ExchangeAssertion(ctx, assertion)
	if err != nil {
		return err
	}

	s.tk.set(res.AccessToken, res.ExpiresIn, now)
	return nil
}
