// Package credentials loads service-account key documents and resolves
// the public keys needed to verify self-issued tokens. A Credentials
// value is immutable after load and safe to share across sessions.
package credentials

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// ParseError reports a malformed key document: bad JSON, bad PEM, or a
// missing required field. It is fatal; retrying the same document
// cannot succeed.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credentials: %s: %v", e.Reason, e.Err)
	}
	return "credentials: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// keyFile mirrors the provider's published service-account key schema.
// APIKey is not part of the provider download; callers add it to the
// document when user flows (which authenticate against the identity
// toolkit) are needed.
type keyFile struct {
	Type              string `json:"type"`
	ProjectID         string `json:"project_id"`
	PrivateKeyID      string `json:"private_key_id"`
	PrivateKey        string `json:"private_key"`
	ClientEmail       string `json:"client_email"`
	ClientID          string `json:"client_id"`
	TokenURI          string `json:"token_uri"`
	ClientX509CertURL string `json:"client_x509_cert_url"`
	APIKey            string `json:"api_key"`
}

// Credentials holds a parsed service-account key. The private key is
// already parsed; nothing here is mutated after FromJSON returns.
type Credentials struct {
	ProjectID    string
	ClientEmail  string
	PrivateKeyID string
	PrivateKey   *rsa.PrivateKey

	// APIKey authorizes identity-toolkit calls for user flows. May be
	// empty when only the service-account flow is used.
	APIKey string

	// CertURL is the well-known endpoint publishing this service
	// account's public certificates, keyed by key id.
	CertURL string
}

// FromFile reads and parses a service-account key document. A missing
// file surfaces as an error wrapping os.ErrNotExist; malformed content
// as *ParseError.
func FromFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", path, err)
	}
	return FromJSON(data)
}

// FromJSON parses a service-account key document from raw bytes.
func FromJSON(data []byte) (*Credentials, error) {
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, &ParseError{Reason: "malformed key document", Err: err}
	}

	switch {
	case kf.ProjectID == "":
		return nil, &ParseError{Reason: "missing project_id"}
	case kf.ClientEmail == "":
		return nil, &ParseError{Reason: "missing client_email"}
	case kf.PrivateKeyID == "":
		return nil, &ParseError{Reason: "missing private_key_id"}
	case kf.PrivateKey == "":
		return nil, &ParseError{Reason: "missing private_key"}
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(kf.PrivateKey))
	if err != nil {
		return nil, &ParseError{Reason: "malformed private_key PEM", Err: err}
	}

	c := &Credentials{
		ProjectID:    kf.ProjectID,
		ClientEmail:  kf.ClientEmail,
		PrivateKeyID: kf.PrivateKeyID,
		PrivateKey:   key,
		APIKey:       kf.APIKey,
		CertURL:      kf.ClientX509CertURL,
	}

	// The credential can always vouch for its own key id.
	storePublicKey(c.PrivateKeyID, &key.PublicKey)

	return c, nil
}
