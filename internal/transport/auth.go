package transport

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Tokens is an OAuth token set as produced by an authorization flow.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// TokenProvider is the authorization contract consumed by the transports.
// The OAuth flow itself (discovery, dynamic registration, PKCE, browser
// redirect) lives outside this package; transports only call Tokens to
// build an Authorization header when one is available.
type TokenProvider interface {
	// Tokens returns the current token set, or nil when the provider has
	// none yet.
	Tokens(ctx context.Context) (*Tokens, error)

	// SaveTokens persists a refreshed token set.
	SaveTokens(ctx context.Context, tokens *Tokens) error

	// CodeVerifier returns the PKCE verifier saved before a redirect.
	CodeVerifier(ctx context.Context) (string, error)

	// SaveCodeVerifier persists the PKCE verifier for the pending flow.
	SaveCodeVerifier(ctx context.Context, verifier string) error

	// RedirectToAuthorization hands the authorization URL to the caller's
	// UX (browser, prompt) to complete the flow.
	RedirectToAuthorization(ctx context.Context, authURL *url.URL) error
}

// hasAuthorization reports whether the configured headers already carry an
// Authorization value, in which case the token provider is not consulted.
// Header keys in manifests are user-typed, so match case-insensitively.
func hasAuthorization(headers map[string]string) bool {
	for k := range headers {
		if strings.EqualFold(k, "Authorization") {
			return true
		}
	}
	return false
}

// requestHeaders builds the header set for one URL-based connection: the
// protocol's content negotiation headers, then the configured custom
// headers, then a bearer token from the provider when no explicit
// Authorization header is present.
func requestHeaders(ctx context.Context, custom map[string]string, provider TokenProvider) (http.Header, error) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json, text/event-stream")

	for k, v := range custom {
		h.Set(k, v)
	}

	if provider != nil && !hasAuthorization(custom) {
		tokens, err := provider.Tokens(ctx)
		if err != nil {
			return nil, err
		}
		if tokens != nil && tokens.AccessToken != "" {
			h.Set("Authorization", "Bearer "+tokens.AccessToken)
		}
	}

	return h, nil
}
