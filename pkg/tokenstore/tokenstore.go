// Package tokenstore persists refresh tokens between runs so an
// impersonation flow (which needs service-account admin reach) does
// not have to be repeated to rebuild a user session. The core itself
// owns no persisted state; this package is for callers who want the
// persist/reload round trip handled for them.
package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/emberworks/fireside/pkg/idx"
)

// ErrNotFound reports a lookup for a name with no stored record.
var ErrNotFound = errors.New("tokenstore: record not found")

// Record is one persisted session handle. Name is the caller-chosen
// key; reloading by name and resuming via session.ByRefreshToken must
// land on the same UserID.
type Record struct {
	ID           idx.ID    `json:"id"`
	Name         string    `json:"name"`
	UserID       string    `json:"user_id"`
	RefreshToken string    `json:"refresh_token"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is implemented by the file and sqlite backends.
type Store interface {
	// Put upserts a record by name, assigning a fresh ID to new
	// records, and returns the stored form.
	Put(ctx context.Context, rec Record) (Record, error)

	// Get returns the record stored under name, or ErrNotFound.
	Get(ctx context.Context, name string) (Record, error)

	// List returns all records ordered by name.
	List(ctx context.Context) ([]Record, error)

	// Delete removes the record stored under name, or ErrNotFound.
	Delete(ctx context.Context, name string) error

	Close() error
}
