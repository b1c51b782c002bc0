package tokenx

// Endpoints are the provider URLs the exchanger talks to. Tests and
// self-hosted emulators override these; production code uses
// DefaultEndpoints.
type Endpoints struct {
	// TokenURL is the OAuth2 token endpoint used for the JWT-bearer
	// assertion grant (service-account flow).
	TokenURL string

	// SecureTokenURL is the refresh-grant endpoint for user sessions.
	SecureTokenURL string

	// IdentityToolkitURL is the base URL for the identity-toolkit
	// accounts operations (custom-token sign-in, token lookup).
	IdentityToolkitURL string
}

// DefaultEndpoints returns the provider's production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		TokenURL:           "https://oauth2.googleapis.com/token",
		SecureTokenURL:     "https://securetoken.googleapis.com/v1/token",
		IdentityToolkitURL: "https://identitytoolkit.googleapis.com/v1",
	}
}

func (e Endpoints) signInWithCustomTokenURL(apiKey string) string {
	return e.IdentityToolkitURL + "/accounts:signInWithCustomToken?key=" + apiKey
}

func (e Endpoints) lookupURL(apiKey string) string {
	return e.IdentityToolkitURL + "/accounts:lookup?key=" + apiKey
}

func (e Endpoints) refreshURL(apiKey string) string {
	return e.SecureTokenURL + "?key=" + apiKey
}
