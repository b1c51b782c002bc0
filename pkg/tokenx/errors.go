package tokenx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Error codes surfaced by the provider. OAuth2 endpoints use the RFC
// 6749 codes; identity-toolkit endpoints use SHOUTING_CASE messages
// which parseErrorResponse maps onto the same constants.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidGrant   = "invalid_grant"
	CodeInvalidToken   = "invalid_token"
	CodeUserNotFound   = "user_not_found"
	CodeServerError    = "server_error"
)

// AuthError reports a request the provider rejected. It carries the
// raw response body for diagnostics and is never retried: the provider
// gave a definitive answer.
type AuthError struct {
	// StatusCode is the HTTP status of the rejection.
	StatusCode int

	// Code is the normalized error code (see Code* constants).
	Code string

	// Description is the provider's human-readable message.
	Description string

	// Body is the raw provider error payload.
	Body []byte
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("tokenx: provider rejected request (%d %s): %s", e.StatusCode, e.Code, e.Description)
}

// IsInvalidToken reports whether the provider rejected a caller-supplied
// token as invalid or expired.
func (e *AuthError) IsInvalidToken() bool {
	return e.Code == CodeInvalidToken
}

// TransportError reports a network-level failure (connection reset,
// timeout, DNS). This is the only error class the exchanger retries.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("tokenx: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// oauthErrorBody is the RFC 6749 error shape used by the token and
// secure-token endpoints.
type oauthErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// apiErrorBody is the identity-toolkit error envelope.
type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// parseErrorResponse turns a non-2xx provider response into an
// *AuthError, preserving the raw body. Returns nil for 2xx responses.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	authErr := &AuthError{
		StatusCode:  resp.StatusCode,
		Code:        CodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		Body:        body,
	}

	var oauthErr oauthErrorBody
	if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Error != "" {
		authErr.Code = oauthErr.Error
		authErr.Description = oauthErr.ErrorDescription
		if authErr.Description == "" {
			authErr.Description = oauthErr.Error
		}
		return authErr
	}

	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		authErr.Code = normalizeToolkitCode(apiErr.Error.Message)
		authErr.Description = apiErr.Error.Message
		return authErr
	}

	return authErr
}

// normalizeToolkitCode maps identity-toolkit messages like
// "INVALID_ID_TOKEN" or "TOKEN_EXPIRED : extra detail" onto the shared
// error-code constants.
func normalizeToolkitCode(message string) string {
	head, _, _ := strings.Cut(message, " ")
	switch head {
	case "INVALID_ID_TOKEN", "TOKEN_EXPIRED", "INVALID_ACCESS_TOKEN":
		return CodeInvalidToken
	case "INVALID_REFRESH_TOKEN", "INVALID_CUSTOM_TOKEN", "CREDENTIAL_MISMATCH":
		return CodeInvalidGrant
	case "USER_NOT_FOUND", "USER_DISABLED":
		return CodeUserNotFound
	case "MISSING_REFRESH_TOKEN", "MISSING_CUSTOM_TOKEN", "INVALID_API_KEY":
		return CodeInvalidRequest
	default:
		return CodeServerError
	}
}
