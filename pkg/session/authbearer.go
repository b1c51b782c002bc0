// Package session orchestrates credentials, token signing and token
// exchange into the two authentication flows: service-account sessions
// and user sessions. Both variants cache their bearer token and
// refresh it synchronously when it goes stale; neither starts
// background goroutines.
package session

import (
	"context"
	"errors"
	"time"
)

// AuthBearer is the capability every downstream operation depends on:
// a project id and a currently-valid bearer token. Bearer may perform
// network I/O when the cached token is stale.
type AuthBearer interface {
	ProjectID() string
	Bearer(ctx context.Context) (string, error)
}

// ErrInvalidCredential reports a constructor input that cannot work:
// an empty user id or token, or a credential missing the API key the
// requested flow needs.
var ErrInvalidCredential = errors.New("session: invalid credential input")

// ExpiryMargin is how long before a token's literal expiry we treat it
// as stale. Refreshing early keeps a token obtained from Bearer usable
// for the request it authorizes.
const ExpiryMargin = 30 * time.Second

// bearer is the cached token state shared by both session variants.
// Callers must hold the owning session's lock.
type bearer struct {
	accessToken string
	expiresAt   time.Time // literal expiry minus ExpiryMargin
}

func (b *bearer) set(accessToken string, expiresIn int, now time.Time) {
	b.accessToken = accessToken
	b.expiresAt = now.Add(time.Duration(expiresIn)*time.Second - ExpiryMargin)
}

func (b *bearer) fresh(now time.Time) bool {
	return b.accessToken != "" && now.Before(b.expiresAt)
}
