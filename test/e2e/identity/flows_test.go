package identity_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberworks/fireside/pkg/credentials"
	"github.com/emberworks/fireside/pkg/session"
	"github.com/emberworks/fireside/pkg/tokenstore"
	"github.com/emberworks/fireside/pkg/tokenx"
	"github.com/emberworks/fireside/pkg/users"
)

func TestServiceAccountFlow(t *testing.T) {
	t.Parallel()

	provider := newIdentityProvider(t)
	cred := provider.credentials()

	sess, err := session.NewServiceAccountWith(context.Background(), cred, provider.exchanger())
	require.NoError(t, err)
	require.Equal(t, testProjectID, sess.ProjectID())

	bearer, err := sess.Bearer(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, bearer)

	// The cached token is served until it goes stale.
	again, err := sess.Bearer(context.Background())
	require.NoError(t, err)
	require.Equal(t, bearer, again)
}

func TestAssertionSignedByUnknownKeyIsRejected(t *testing.T) {
	t.Parallel()

	provider := newIdentityProvider(t)
	provider.credentials() // registers the legitimate key

	rogueKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	doc, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     testProjectID,
		"private_key_id": "rogue-kid",
		"client_email":   testEmail,
		"api_key":        testAPIKey,
		"private_key": string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(rogueKey),
		})),
	})
	require.NoError(t, err)
	rogue, err := credentials.FromJSON(doc)
	require.NoError(t, err)

	_, err = session.NewServiceAccountWith(context.Background(), rogue, provider.exchanger())
	require.Error(t, err)

	var authErr *tokenx.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, tokenx.CodeInvalidGrant, authErr.Code)
}

func TestImpersonationFlow(t *testing.T) {
	t.Parallel()

	provider := newIdentityProvider(t)
	cred := provider.credentials()
	provider.addAccount(account{
		UID:         "uid-100",
		Email:       "casual@example.com",
		DisplayName: "Casual User",
	})

	sess, err := session.ByUserIDWith(context.Background(), cred, "uid-100", provider.exchanger())
	require.NoError(t, err)
	require.Equal(t, "uid-100", sess.UserID())
	require.NotEmpty(t, sess.RefreshToken())

	client := users.NewClient(cred.APIKey)
	client.BaseURL = provider.srv.URL + "/v1"

	rec, err := client.Info(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, "uid-100", rec.UserID)
	require.Equal(t, "casual@example.com", rec.Email)
	require.Equal(t, "Casual User", rec.DisplayName)
}

func TestImpersonatingUnknownUserFails(t *testing.T) {
	t.Parallel()

	provider := newIdentityProvider(t)
	cred := provider.credentials()

	_, err := session.ByUserIDWith(context.Background(), cred, "nobody", provider.exchanger())
	require.Error(t, err)

	var authErr *tokenx.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, tokenx.CodeUserNotFound, authErr.Code)
}

// TestRefreshTokenPersistenceRoundTrip walks the full resume path:
// impersonate, persist the refresh token, reload it from disk in a new
// store handle and rebuild a session for the same user. The provider
// rotates refresh tokens on every grant, so the stored token must be
// replaced after the resume.
func TestRefreshTokenPersistenceRoundTrip(t *testing.T) {
	t.Parallel()

	provider := newIdentityProvider(t)
	cred := provider.credentials()
	provider.addAccount(account{UID: "uid-200", Email: "resumed@example.com"})

	first, err := session.ByUserIDWith(context.Background(), cred, "uid-200", provider.exchanger())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sessions.json")
	store := tokenstore.NewFileStore(path, "e2e-passphrase")
	_, err = store.Put(context.Background(), tokenstore.Record{
		Name:         "resumed",
		UserID:       first.UserID(),
		RefreshToken: first.RefreshToken(),
	})
	require.NoError(t, err)

	// Fresh handle, as a later process would open it.
	reopened := tokenstore.NewFileStore(path, "e2e-passphrase")
	rec, err := reopened.Get(context.Background(), "resumed")
	require.NoError(t, err)

	second, err := session.ByRefreshTokenWith(context.Background(), cred, rec.RefreshToken, provider.exchanger())
	require.NoError(t, err)
	require.Equal(t, "uid-200", second.UserID())
	require.NotEqual(t, rec.RefreshToken, second.RefreshToken(), "provider rotates refresh tokens")

	// The rotated token is the only one that still works.
	_, err = session.ByRefreshTokenWith(context.Background(), cred, rec.RefreshToken, provider.exchanger())
	var authErr *tokenx.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, tokenx.CodeInvalidGrant, authErr.Code)

	third, err := session.ByRefreshTokenWith(context.Background(), cred, second.RefreshToken(), provider.exchanger())
	require.NoError(t, err)
	require.Equal(t, "uid-200", third.UserID())
}

func TestRefreshTokenRoundTripThroughSQLite(t *testing.T) {
	t.Parallel()

	provider := newIdentityProvider(t)
	cred := provider.credentials()
	provider.addAccount(account{UID: "uid-250", Email: "durable@example.com"})

	first, err := session.ByUserIDWith(context.Background(), cred, "uid-250", provider.exchanger())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := tokenstore.NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = store.Put(context.Background(), tokenstore.Record{
		Name:         "durable",
		UserID:       first.UserID(),
		RefreshToken: first.RefreshToken(),
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := tokenstore.NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Get(context.Background(), "durable")
	require.NoError(t, err)

	resumed, err := session.ByRefreshTokenWith(context.Background(), cred, rec.RefreshToken, provider.exchanger())
	require.NoError(t, err)
	require.Equal(t, "uid-250", resumed.UserID())
}

func TestByAccessTokenFlow(t *testing.T) {
	t.Parallel()

	provider := newIdentityProvider(t)
	cred := provider.credentials()
	provider.addAccount(account{UID: "uid-300", Email: "wrapped@example.com"})

	minted, err := session.ByUserIDWith(context.Background(), cred, "uid-300", provider.exchanger())
	require.NoError(t, err)

	wrapped, err := session.ByAccessTokenWith(context.Background(), cred, minted.AccessToken(), provider.exchanger())
	require.NoError(t, err)
	require.Equal(t, "uid-300", wrapped.UserID())
	require.Empty(t, wrapped.RefreshToken())

	bearer, err := wrapped.Bearer(context.Background())
	require.NoError(t, err)
	require.Equal(t, minted.AccessToken(), bearer)
}

func TestSessionsAreInterchangeableAsAuthBearer(t *testing.T) {
	t.Parallel()

	provider := newIdentityProvider(t)
	cred := provider.credentials()
	provider.addAccount(account{UID: "uid-400", Email: "either@example.com"})

	sa, err := session.NewServiceAccountWith(context.Background(), cred, provider.exchanger())
	require.NoError(t, err)
	user, err := session.ByUserIDWith(context.Background(), cred, "uid-400", provider.exchanger())
	require.NoError(t, err)

	for _, auth := range []session.AuthBearer{sa, user} {
		require.Equal(t, testProjectID, auth.ProjectID())
		bearer, err := auth.Bearer(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, bearer)
	}
}

func TestSealedStoreRejectsWrongPassphrase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sessions.json")
	store := tokenstore.NewFileStore(path, "right")
	_, err := store.Put(context.Background(), tokenstore.Record{
		Name: "locked", UserID: "uid", RefreshToken: "token",
	})
	require.NoError(t, err)

	_, err = tokenstore.NewFileStore(path, "wrong").Get(context.Background(), "locked")
	require.Error(t, err)
	require.False(t, errors.Is(err, tokenstore.ErrNotFound))
}
