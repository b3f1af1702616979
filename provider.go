// Package portier manages the credential and token lifecycle for a
// broadcaster streaming platform client: the multi-step login handshake,
// on-demand session refresh, stream-class-scoped player tokens and logout.
package portier

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/zenderhuis/portier/core"
)

// DefaultHTTPTimeout bounds every provider call. Provider unavailability is
// a core.NetworkError, never an indefinite hang.
const DefaultHTTPTimeout = 15 * time.Second

// ProviderConfig describes the broadcaster's identity provider endpoints and
// the static client material the handshake submits.
type ProviderConfig struct {
	// LoginInitURL is the login-init endpoint that sets the anti-forgery
	// cookie.
	LoginInitURL string

	// CredentialURL is the credential endpoint that validates the
	// identity/secret pair.
	CredentialURL string

	// SessionURL is the session-issuance endpoint that sets the four
	// session cookies.
	SessionURL string

	// RefreshURL is the token-refresh endpoint.
	RefreshURL string

	// PlayerTokenURL is the player-token issuance endpoint.
	PlayerTokenURL string

	// LogoutURL is the logout notification endpoint.
	LogoutURL string

	// APIKey is the static client API key submitted to the credential
	// endpoint.
	APIKey string

	// ClientID is the static client id submitted to the session-issuance
	// endpoint.
	ClientID string

	// Referer is sent on the login-init and logout calls.
	Referer string

	// AntiForgeryCookie is the name of the cookie the login-init endpoint
	// sets.
	AntiForgeryCookie string

	// SessionExpiration is the session-expiration hint submitted to the
	// credential endpoint, in seconds.
	SessionExpiration int

	// Timeout bounds each HTTP call. Zero means DefaultHTTPTimeout.
	Timeout time.Duration
}

func (c *ProviderConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultHTTPTimeout
}

// newHTTPClient returns an ephemeral client with its own empty cookie jar,
// so no cookies leak between unrelated logins.
func (c *ProviderConfig) newHTTPClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Timeout: c.timeout(),
		Jar:     jar,
	}
}

// doRequest executes a single provider call and converts transport failures
// into core.NetworkError. The caller owns the response body.
func doRequest(client *http.Client, req *http.Request, op string) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &core.NetworkError{Op: op, Err: err}
	}
	return resp, nil
}

// drainAndClose reads the remainder of a response body and closes it, so
// the underlying connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4<<10))
	_ = body.Close()
}
