package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emberworks/fireside/pkg/credentials"
	"github.com/emberworks/fireside/pkg/jwtx"
	"github.com/emberworks/fireside/pkg/tokenx"
)

// UserSession authenticates as a specific end user. Three ways in:
// impersonation of a known user id (ByUserID), resuming a persisted
// refresh token (ByRefreshToken), or wrapping an access token obtained
// elsewhere (ByAccessToken). All three share one refresh path: the
// refresh-token grant, when a refresh token is present.
//
// Safe for concurrent use; the internal lock serializes refreshes.
type UserSession struct {
	cred      *credentials.Credentials
	exchanger *tokenx.Exchanger
	userID    string

	mu           sync.RWMutex
	tk           bearer
	refreshToken string
}

var _ AuthBearer = (*UserSession)(nil)

// ByUserID mints a session for a known user id without that user's
// password: the service account signs a custom token naming the user
// as subject and exchanges it for a user token pair. The resulting
// session carries a refresh token the caller may persist.
func ByUserID(ctx context.Context, cred *credentials.Credentials, userID string) (*UserSession, error) {
	return ByUserIDWith(ctx, cred, userID, tokenx.New(tokenx.DefaultEndpoints()))
}

// ByUserIDWith is ByUserID with a caller-configured exchanger.
func ByUserIDWith(ctx context.Context, cred *credentials.Credentials, userID string, x *tokenx.Exchanger) (*UserSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidCredential)
	}
	if err := requireAPIKey(cred); err != nil {
		return nil, err
	}

	signer, err := jwtx.NewSignerRS256(cred.PrivateKeyID, cred.PrivateKey)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	customToken, err := signer.Sign(jwtx.NewCustomTokenClaims(cred.ClientEmail, userID, jwtx.CustomTokenAudience, now))
	if err != nil {
		return nil, err
	}

	res, err := x.ExchangeCustomToken(ctx, cred.APIKey, customToken)
	if err != nil {
		return nil, err
	}

	return newUserSession(cred, x, res, now), nil
}

// ByRefreshToken resumes a session from a previously persisted refresh
// token. The subject id comes back from the refresh grant, so a
// persist-and-reload round trip yields the same user.
func ByRefreshToken(ctx context.Context, cred *credentials.Credentials, refreshToken string) (*UserSession, error) {
	return ByRefreshTokenWith(ctx, cred, refreshToken, tokenx.New(tokenx.DefaultEndpoints()))
}

// ByRefreshTokenWith is ByRefreshToken with a caller-configured
// exchanger.
func ByRefreshTokenWith(ctx context.Context, cred *credentials.Credentials, refreshToken string, x *tokenx.Exchanger) (*UserSession, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: empty refresh token", ErrInvalidCredential)
	}
	if err := requireAPIKey(cred); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := x.ExchangeRefreshToken(ctx, cred.APIKey, refreshToken)
	if err != nil {
		return nil, err
	}

	return newUserSession(cred, x, res, now), nil
}

// ByAccessToken wraps an access token obtained elsewhere, resolving
// and storing its subject id via the token-info endpoint. The session
// has no refresh token: once the wrapped token expires, Bearer fails.
func ByAccessToken(ctx context.Context, cred *credentials.Credentials, accessToken string) (*UserSession, error) {
	return ByAccessTokenWith(ctx, cred, accessToken, tokenx.New(tokenx.DefaultEndpoints()))
}

// ByAccessTokenWith is ByAccessToken with a caller-configured
// exchanger.
func ByAccessTokenWith(ctx context.Context, cred *credentials.Credentials, accessToken string, x *tokenx.Exchanger) (*UserSession, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrInvalidCredential)
	}
	if err := requireAPIKey(cred); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := x.LookupAccessToken(ctx, cred.APIKey, accessToken)
	if err != nil {
		return nil, err
	}

	return newUserSession(cred, x, res, now), nil
}

func requireAPIKey(cred *credentials.Credentials) error {
	if cred.APIKey == "" {
		return fmt.Errorf("%w: credential has no api_key, required for user flows", ErrInvalidCredential)
	}
	return nil
}

func newUserSession(cred *credentials.Credentials, x *tokenx.Exchanger, res *tokenx.TokenResult, now time.Time) *UserSession {
	s := &UserSession{
		cred:         cred,
		exchanger:    x,
		userID:       res.SubjectID,
		refreshToken: res.RefreshToken,
	}
	s.tk.set(res.AccessToken, res.ExpiresIn, now)
	return s
}

// ProjectID returns the credential's project id.
func (s *UserSession) ProjectID() string { return s.cred.ProjectID }

// UserID returns the subject this session is bound to.
func (s *UserSession) UserID() string { return s.userID }

// RefreshToken returns the current refresh token, empty for sessions
// built from a bare access token. Callers may persist it and resume
// later via ByRefreshToken.
func (s *UserSession) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// AccessToken returns the cached token without any freshness check.
func (s *UserSession) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tk.accessToken
}

// Bearer returns the cached access token, refreshing it through the
// refresh-token grant if stale. A failed refresh leaves the previous
// state untouched; a stale token is never silently served.
func (s *UserSession) Bearer(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.tk.fresh(time.Now()) {
		token := s.tk.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tk.fresh(time.Now()) {
		return s.tk.accessToken, nil
	}

	if s.refreshToken == "" {
		return "", fmt.Errorf("session: access token expired and no refresh token available")
	}

	now := time.Now().UTC()
	res, err := s.exchanger.ExchangeRefreshToken(ctx, s.cred.APIKey, s.refreshToken)
	if err != nil {
		return "", err
	}

	s.tk.set(res.AccessToken, res.ExpiresIn, now)
	if res.RefreshToken != "" {
		s.refreshToken = res.RefreshToken
	}
	return s.tk.accessToken, nil
}
