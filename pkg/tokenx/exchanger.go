// Package tokenx performs the network half of authentication: it
// exchanges signed assertions, refresh tokens and custom tokens for
// bearer tokens, normalizing the provider's different response shapes
// into one result type. Transport failures are retried a bounded
// number of times; provider rejections never are.
package tokenx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// defaultUserTokenLifetime is assumed for tokens whose expiry cannot
// be read from the token itself. Matches the provider's issued
// lifetime.
const defaultUserTokenLifetime = 3600

// seconds unmarshals a lifetime that the provider serves as either a
// JSON number (OAuth2 endpoints) or a quoted string (identity
// toolkit).
type seconds int

func (s *seconds) UnmarshalJSON(b []byte) error {
	raw := string(bytes.Trim(b, `"`))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("tokenx: bad expires_in %q: %w", raw, err)
	}
	*s = seconds(n)
	return nil
}

// TokenResult is the normalized outcome of any exchange.
type TokenResult struct {
	// AccessToken is the bearer token to present on API calls.
	AccessToken string

	// ExpiresIn is the token lifetime in seconds at the time of the
	// exchange.
	ExpiresIn int

	// RefreshToken is set on user flows only; service-account
	// assertions are re-signed instead of refreshed.
	RefreshToken string

	// SubjectID is the user id the token is bound to, when known.
	SubjectID string
}

// Exchanger calls the provider's token endpoints. The zero value is
// not usable; construct with New and override fields before first use
// if needed.
type Exchanger struct {
	Endpoints  Endpoints
	HTTPClient *http.Client

	// Limiter paces outbound exchange calls so a tight refresh loop
	// cannot hammer the token endpoints.
	Limiter *rate.Limiter

	// MaxRetries is the number of extra attempts after a transport
	// failure. Provider rejections (any HTTP status) are never retried.
	MaxRetries int

	Logger *slog.Logger
}

// New returns an Exchanger with production defaults.
func New(endpoints Endpoints) *Exchanger {
	return &Exchanger{
		Endpoints:  endpoints,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Limiter:    rate.NewLimiter(rate.Every(time.Second), 10),
		MaxRetries: 2,
		Logger:     slog.Default(),
	}
}

// ExchangeAssertion posts a signed service-account assertion to the
// OAuth2 token endpoint (JWT-bearer grant). No refresh token is
// issued; expiry means re-sign and re-exchange.
func (x *Exchanger) ExchangeAssertion(ctx context.Context, assertion string) (*TokenResult, error) {
	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}

	var out struct {
		AccessToken string  `json:"access_token"`
		ExpiresIn   seconds `json:"expires_in"`
	}
	if err := x.postForm(ctx, "exchange assertion", x.Endpoints.TokenURL, form, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("tokenx: token endpoint returned no access token")
	}

	return &TokenResult{
		AccessToken: out.AccessToken,
		ExpiresIn:   int(out.ExpiresIn),
	}, nil
}

// ExchangeRefreshToken posts a refresh grant to the secure-token
// endpoint, returning a fresh access token, the (usually unchanged)
// refresh token and the bound subject id.
func (x *Exchanger) ExchangeRefreshToken(ctx context.Context, apiKey, refreshToken string) (*TokenResult, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	var out struct {
		AccessToken  string  `json:"access_token"`
		IDToken      string  `json:"id_token"`
		ExpiresIn    seconds `json:"expires_in"`
		RefreshToken string  `json:"refresh_token"`
		UserID       string  `json:"user_id"`
	}
	if err := x.postForm(ctx, "refresh token", x.Endpoints.refreshURL(apiKey), form, &out); err != nil {
		return nil, err
	}

	token := out.AccessToken
	if token == "" {
		token = out.IDToken
	}
	if token == "" {
		return nil, fmt.Errorf("tokenx: secure-token endpoint returned no access token")
	}

	return &TokenResult{
		AccessToken:  token,
		ExpiresIn:    int(out.ExpiresIn),
		RefreshToken: out.RefreshToken,
		SubjectID:    out.UserID,
	}, nil
}

// ExchangeCustomToken signs in with a service-account-signed custom
// token, yielding a user access+refresh token pair and the resolved
// subject id. This is the impersonation flow: no user password is
// involved.
func (x *Exchanger) ExchangeCustomToken(ctx context.Context, apiKey, customToken string) (*TokenResult, error) {
	payload := map[string]any{
		"token":             customToken,
		"returnSecureToken": true,
	}

	var out struct {
		IDToken      string  `json:"idToken"`
		RefreshToken string  `json:"refreshToken"`
		ExpiresIn    seconds `json:"expiresIn"`
	}
	if err := x.postJSON(ctx, "exchange custom token", x.Endpoints.signInWithCustomTokenURL(apiKey), payload, &out); err != nil {
		return nil, err
	}
	if out.IDToken == "" {
		return nil, fmt.Errorf("tokenx: custom-token sign-in returned no token")
	}

	lookup, err := x.LookupAccessToken(ctx, apiKey, out.IDToken)
	if err != nil {
		return nil, err
	}

	return &TokenResult{
		AccessToken:  out.IDToken,
		ExpiresIn:    int(out.ExpiresIn),
		RefreshToken: out.RefreshToken,
		SubjectID:    lookup.SubjectID,
	}, nil
}

// LookupAccessToken validates a caller-supplied access token against
// the token-info endpoint and returns its bound subject id and
// remaining lifetime. Rejections surface as *AuthError with an
// invalid-token code.
func (x *Exchanger) LookupAccessToken(ctx context.Context, apiKey, accessToken string) (*TokenResult, error) {
	payload := map[string]any{"idToken": accessToken}

	var out struct {
		Users []struct {
			LocalID string `json:"localId"`
		} `json:"users"`
	}
	if err := x.postJSON(ctx, "lookup access token", x.Endpoints.lookupURL(apiKey), payload, &out); err != nil {
		return nil, err
	}
	if len(out.Users) == 0 {
		return nil, &AuthError{
			StatusCode:  http.StatusOK,
			Code:        CodeUserNotFound,
			Description: "token-info response named no user",
		}
	}

	return &TokenResult{
		AccessToken: accessToken,
		ExpiresIn:   remainingLifetime(accessToken, time.Now()),
		SubjectID:   out.Users[0].LocalID,
	}, nil
}

// remainingLifetime reads the exp claim out of the token without
// verifying the signature; the provider already vouched for the token
// via the lookup call. Opaque tokens fall back to the provider's
// issued lifetime.
func remainingLifetime(token string, now time.Time) int {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return defaultUserTokenLifetime
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return defaultUserTokenLifetime
	}
	remaining := int(exp.Time.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (x *Exchanger) postForm(ctx context.Context, op, endpoint string, form url.Values, target any) error {
	return x.post(ctx, op, endpoint, "application/x-www-form-urlencoded", []byte(form.Encode()), target)
}

func (x *Exchanger) postJSON(ctx context.Context, op, endpoint string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tokenx: %s: encode request: %w", op, err)
	}
	return x.post(ctx, op, endpoint, "application/json", body, target)
}

// post performs one exchange call with bounded transport retry. Every
// attempt rebuilds the request, and the rate limiter paces attempts as
// well as calls.
func (x *Exchanger) post(ctx context.Context, op, endpoint, contentType string, body []byte, target any) error {
	var lastErr error

	for attempt := 0; attempt <= x.MaxRetries; attempt++ {
		if err := x.Limiter.Wait(ctx); err != nil {
			return &TransportError{Op: op, Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("tokenx: %s: build request: %w", op, err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := x.HTTPClient.Do(req)
		if err != nil {
			lastErr = &TransportError{Op: op, Err: err}
			if ctx.Err() != nil {
				return lastErr
			}
			x.Logger.Warn("exchange attempt failed, retrying",
				"op", op, "attempt", attempt+1, "error", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &TransportError{Op: op, Err: err}
			continue
		}

		if err := parseErrorResponse(resp, respBody); err != nil {
			return err
		}

		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("tokenx: %s: decode response: %w", op, err)
		}
		return nil
	}

	return lastErr
}
