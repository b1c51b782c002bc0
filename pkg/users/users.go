// Package users looks up account information for an authenticated
// session. It is a downstream consumer of the session capability: it
// asks the session for a project id and bearer token and builds its
// own provider requests, the same contract the document operations
// follow.
package users

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/emberworks/fireside/pkg/session"
)

// UserRecord is the subset of account fields the lookup endpoint
// reports that callers typically care about.
type UserRecord struct {
	UserID        string `json:"localId"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoUrl"`
	EmailVerified bool   `json:"emailVerified"`
	Disabled      bool   `json:"disabled"`
}

// Client queries the identity-toolkit account endpoints.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient returns a client against the provider's production
// endpoint.
func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL:    "https://identitytoolkit.googleapis.com/v1",
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Info returns the account record for the session's own subject.
func (c *Client) Info(ctx context.Context, auth session.AuthBearer) (*UserRecord, error) {
	bearer, err := auth.Bearer(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"idToken": bearer})
	if err != nil {
		return nil, fmt.Errorf("users: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.BaseURL+"/accounts:lookup?key="+c.APIKey,
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("users: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("users: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("users: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("users: lookup failed with status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Users []UserRecord `json:"users"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("users: decode response: %w", err)
	}
	if len(out.Users) == 0 {
		return nil, fmt.Errorf("users: lookup named no user")
	}

	return &out.Users[0], nil
}
