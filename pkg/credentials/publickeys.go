package credentials

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ErrUnknownKey reports a key id with no matching public key, locally
// or at the credential's certificate endpoint.
var ErrUnknownKey = errors.New("credentials: unknown key id")

// publicKeys is the process-wide verification key cache. Entries are
// write-once per key id: a kid never changes key material, so the
// first stored value wins and concurrent readers need no coordination
// beyond the RWMutex.
var publicKeys = struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}{keys: make(map[string]*rsa.PublicKey)}

// certClient fetches certificate documents. Cert endpoints are plain
// GETs of small JSON maps, so one shared client with a timeout is fine.
var certClient = &http.Client{Timeout: 10 * time.Second}

func storePublicKey(kid string, pub *rsa.PublicKey) {
	publicKeys.mu.Lock()
	defer publicKeys.mu.Unlock()
	if _, ok := publicKeys.keys[kid]; !ok {
		publicKeys.keys[kid] = pub
	}
}

func lookupPublicKey(kid string) (*rsa.PublicKey, bool) {
	publicKeys.mu.RLock()
	defer publicKeys.mu.RUnlock()
	pub, ok := publicKeys.keys[kid]
	return pub, ok
}

// PublicKey resolves the public key for the given key id. The
// credential's own key id resolves locally; other ids are looked up in
// the process-wide cache and, on a miss, fetched once from the
// credential's certificate endpoint. Returns ErrUnknownKey when the
// endpoint does not publish the id either.
func (c *Credentials) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == c.PrivateKeyID {
		return &c.PrivateKey.PublicKey, nil
	}

	if pub, ok := lookupPublicKey(kid); ok {
		return pub, nil
	}

	if c.CertURL == "" {
		return nil, ErrUnknownKey
	}
	if err := c.fetchCertificates(ctx); err != nil {
		return nil, err
	}

	if pub, ok := lookupPublicKey(kid); ok {
		return pub, nil
	}
	return nil, ErrUnknownKey
}

// fetchCertificates downloads the credential's certificate document (a
// JSON map of key id to PEM-encoded X.509 certificate) and populates
// the cache with every key it doesn't already hold.
func (c *Credentials) fetchCertificates(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CertURL, nil)
	if err != nil {
		return fmt.Errorf("credentials: build cert request: %w", err)
	}

	resp, err := certClient.Do(req)
	if err != nil {
		return fmt.Errorf("credentials: fetch certificates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("credentials: cert endpoint returned %d: %s", resp.StatusCode, body)
	}

	var certs map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return fmt.Errorf("credentials: decode cert document: %w", err)
	}

	for kid, certPEM := range certs {
		pub, err := parseCertificatePEM([]byte(certPEM))
		if err != nil {
			return fmt.Errorf("credentials: certificate for kid %q: %w", kid, err)
		}
		storePublicKey(kid, pub)
	}
	return nil
}

func parseCertificatePEM(certPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, errors.New("invalid PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not hold an RSA key")
	}
	return pub, nil
}
