package identity_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberworks/fireside/pkg/credentials"
	"github.com/emberworks/fireside/pkg/jwtx"
	"github.com/emberworks/fireside/pkg/tokenx"
)

const (
	testProjectID = "e2e-project"
	testKID       = "e2e-kid-1"
	testEmail     = "robot@e2e-project.iam.gserviceaccount.com"
	testAPIKey    = "e2e-api-key"
)

type account struct {
	UID         string
	Email       string
	DisplayName string
}

// identityProvider is an in-process stand-in for the real identity
// service. Unlike the session package's fake, it verifies every signed
// assertion and custom token with the registered public key before
// issuing anything, so these tests cover the full sign-exchange-verify
// loop.
type identityProvider struct {
	t    *testing.T
	srv  *httptest.Server
	keys *jwtx.KeySet

	mu            sync.Mutex
	counter       int
	accounts      map[string]account // uid -> account
	refreshTokens map[string]string  // refresh token -> uid
	idTokens      map[string]string  // access token -> uid
}

func newIdentityProvider(t *testing.T) *identityProvider {
	p := &identityProvider{
		t:             t,
		keys:          jwtx.NewKeySet(),
		accounts:      make(map[string]account),
		refreshTokens: make(map[string]string),
		idTokens:      make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", p.handleAssertion)
	mux.HandleFunc("/securetoken", p.handleRefresh)
	mux.HandleFunc("/v1/accounts:signInWithCustomToken", p.handleCustomToken)
	mux.HandleFunc("/v1/accounts:lookup", p.handleLookup)

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

// credentials generates a fresh service-account key pair, registers its
// public half with the provider and returns the parsed credentials.
func (p *identityProvider) credentials() *credentials.Credentials {
	p.t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(p.t, err)

	doc, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     testProjectID,
		"private_key_id": testKID,
		"client_email":   testEmail,
		"api_key":        testAPIKey,
		"private_key": string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})),
	})
	require.NoError(p.t, err)

	cred, err := credentials.FromJSON(doc)
	require.NoError(p.t, err)

	p.keys.Add(testKID, &key.PublicKey)
	return cred
}

func (p *identityProvider) exchanger() *tokenx.Exchanger {
	return tokenx.New(tokenx.Endpoints{
		TokenURL:           p.srv.URL + "/token",
		SecureTokenURL:     p.srv.URL + "/securetoken",
		IdentityToolkitURL: p.srv.URL + "/v1",
	})
}

func (p *identityProvider) addAccount(a account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[a.UID] = a
}

func (p *identityProvider) next(prefix string) string {
	p.counter++
	return fmt.Sprintf("%s-%d", prefix, p.counter)
}

// handleAssertion verifies the JWT-bearer assertion signature, issuer
// and audience before handing out a service-account access token.
func (p *identityProvider) handleAssertion(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	require.NoError(p.t, r.ParseForm())
	if r.FormValue("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		writeOAuthError(w, "unsupported_grant_type", "want jwt-bearer")
		return
	}

	verifier := jwtx.NewVerifierRS256(p.keys, testEmail, []string{p.srv.URL + "/token"})
	claims, err := verifier.Verify(r.FormValue("assertion"))
	if err != nil {
		writeOAuthError(w, "invalid_grant", err.Error())
		return
	}
	if claims.Scope == "" {
		writeOAuthError(w, "invalid_request", "assertion carries no scope")
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": p.next("sa-access"),
		"expires_in":   3600,
	})
}

// handleCustomToken verifies the impersonation token and opens a user
// session for the uid it vouches for.
func (p *identityProvider) handleCustomToken(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(p.t, json.NewDecoder(r.Body).Decode(&body))

	verifier := jwtx.NewVerifierRS256(p.keys, testEmail, []string{jwtx.CustomTokenAudience})
	claims, err := verifier.Verify(body.Token)
	if err != nil {
		writeToolkitError(w, "INVALID_CUSTOM_TOKEN")
		return
	}
	if _, ok := p.accounts[claims.UID]; !ok {
		writeToolkitError(w, "USER_NOT_FOUND")
		return
	}

	idToken := p.next("id-token")
	refresh := p.next("refresh")
	p.idTokens[idToken] = claims.UID
	p.refreshTokens[refresh] = claims.UID

	_ = json.NewEncoder(w).Encode(map[string]any{
		"idToken":      idToken,
		"refreshToken": refresh,
		"expiresIn":    "3600",
	})
}

// handleRefresh rotates the refresh token on every grant, the way the
// real secure-token endpoint is allowed to.
func (p *identityProvider) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.URL.Query().Get("key") != testAPIKey {
		writeToolkitError(w, "INVALID_API_KEY")
		return
	}

	require.NoError(p.t, r.ParseForm())
	uid, ok := p.refreshTokens[r.FormValue("refresh_token")]
	if !ok {
		writeToolkitError(w, "INVALID_REFRESH_TOKEN")
		return
	}
	delete(p.refreshTokens, r.FormValue("refresh_token"))

	token := p.next("user-access")
	rotated := p.next("refresh")
	p.idTokens[token] = uid
	p.refreshTokens[rotated] = uid

	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  token,
		"expires_in":    "3600",
		"refresh_token": rotated,
		"user_id":       uid,
	})
}

func (p *identityProvider) handleLookup(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var body struct {
		IDToken string `json:"idToken"`
	}
	require.NoError(p.t, json.NewDecoder(r.Body).Decode(&body))

	uid, ok := p.idTokens[body.IDToken]
	if !ok {
		writeToolkitError(w, "INVALID_ID_TOKEN")
		return
	}
	acct := p.accounts[uid]

	_ = json.NewEncoder(w).Encode(map[string]any{
		"users": []map[string]any{{
			"localId":     acct.UID,
			"email":       acct.Email,
			"displayName": acct.DisplayName,
		}},
	})
}

func writeOAuthError(w http.ResponseWriter, code, description string) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeToolkitError(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": 400, "message": message, "status": "INVALID_ARGUMENT"},
	})
}
