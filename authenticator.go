package portier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zenderhuis/portier/core"
	"github.com/zenderhuis/portier/ports"
)

// targetEnv is the static environment hint the credential endpoint expects
// alongside the API key.
const targetEnv = "jssdk"

// IdentityAuthenticator executes the three-step external login handshake
// and, on success, populates the store with a complete session credential
// set.
type IdentityAuthenticator struct {
	store    ports.Store
	events   ports.EventPublisher
	provider *ProviderConfig
	log      *logrus.Entry

	clock func() time.Time
}

// NewIdentityAuthenticator creates an authenticator backed by the given
// store. events may be nil.
func NewIdentityAuthenticator(store ports.Store, events ports.EventPublisher, provider *ProviderConfig, log *logrus.Entry) *IdentityAuthenticator {
	return &IdentityAuthenticator{
		store:    store,
		events:   events,
		provider: provider,
		log:      log,
		clock:    time.Now,
	}
}

// credentialResponse is the JSON body of the credential endpoint.
type credentialResponse struct {
	ErrorCode          int          `json:"errorCode"`
	UID                string       `json:"UID"`
	UIDSignature       string       `json:"UIDSignature"`
	SignatureTimestamp string       `json:"signatureTimestamp"`
	Profile            core.Profile `json:"profile"`
}

// Login performs the full handshake. Each step depends on the previous one
// and none of them is retried. The handshake uses an ephemeral HTTP client
// with its own cookie jar, so no cookies leak between unrelated logins.
func (a *IdentityAuthenticator) Login(ctx context.Context, identity, secret string) (*core.SessionCredentialSet, error) {
	client := a.provider.newHTTPClient()

	antiForgery, err := a.initLogin(ctx, client)
	if err != nil {
		a.markFailed(ctx)
		return nil, err
	}

	creds, err := a.authenticate(ctx, client, identity, secret)
	if err != nil {
		a.markFailed(ctx)
		return nil, err
	}

	set, err := a.exchange(ctx, client, creds, antiForgery)
	if err != nil {
		a.markFailed(ctx)
		return nil, err
	}

	if err := a.persist(ctx, set, &creds.Profile); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	a.log.WithField("identity", identity).Info("login handshake complete")

	if a.events != nil {
		if err := a.events.PublishLogin(ctx, creds.Profile.FirstName, creds.Profile.LastName); err != nil {
			a.log.WithError(err).Warn("failed to publish login event")
		}
	}

	return set, nil
}

// initLogin requests the anti-forgery token from the login-init endpoint.
func (a *IdentityAuthenticator) initLogin(ctx context.Context, client *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.provider.LoginInitURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build login-init request: %w", err)
	}
	req.Header.Set("Referer", a.provider.Referer)

	resp, err := doRequest(client, req, "login-init")
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp.Body)

	for _, cookie := range resp.Cookies() {
		if cookie.Name == a.provider.AntiForgeryCookie && cookie.Value != "" {
			return cookie.Value, nil
		}
	}

	return "", core.ErrMissingAntiForgeryToken
}

// authenticate submits the identity and secret to the credential endpoint.
func (a *IdentityAuthenticator) authenticate(ctx context.Context, client *http.Client, identity, secret string) (*credentialResponse, error) {
	form := url.Values{}
	form.Set("loginID", identity)
	form.Set("password", secret)
	form.Set("sessionExpiration", strconv.Itoa(a.provider.SessionExpiration))
	form.Set("APIKey", a.provider.APIKey)
	form.Set("targetEnv", targetEnv)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.provider.CredentialURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build credential request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := doRequest(client, req, "authenticate")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.ErrInvalidCredentials
	}

	creds := new(credentialResponse)
	if err := json.NewDecoder(resp.Body).Decode(creds); err != nil {
		return nil, &core.ParseError{What: "credential response", Err: err}
	}

	// The provider reports bad credentials as a 200 with a non-zero
	// errorCode. Missing identity fields get the same treatment.
	if creds.ErrorCode != 0 || creds.UID == "" || creds.UIDSignature == "" || creds.SignatureTimestamp == "" {
		return nil, core.ErrInvalidCredentials
	}

	return creds, nil
}

// exchange trades the signed identity for the four session cookies.
func (a *IdentityAuthenticator) exchange(ctx context.Context, client *http.Client, creds *credentialResponse, antiForgery string) (*core.SessionCredentialSet, error) {
	form := url.Values{}
	form.Set("UID", creds.UID)
	form.Set("UIDSignature", creds.UIDSignature)
	form.Set("signatureTimestamp", creds.SignatureTimestamp)
	form.Set("client_id", a.provider.ClientID)
	form.Set(a.provider.AntiForgeryCookie, antiForgery)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.provider.SessionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := doRequest(client, req, "exchange")
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.SessionExchangeFailedError{StatusCode: resp.StatusCode}
	}

	now := a.clock()
	set := &core.SessionCredentialSet{}
	count := 0
	for _, cookie := range resp.Cookies() {
		if !isSessionCookie(cookie.Name) {
			continue
		}
		count++
		set.Set(credentialFromCookie(cookie, now))
	}

	if count != len(core.SessionCredentialNames) || !set.Complete() {
		return nil, &core.IncompleteSessionError{Count: count}
	}

	return set, nil
}

// persist writes the four credentials, the profile display name and the
// authenticated flag to the store.
func (a *IdentityAuthenticator) persist(ctx context.Context, set *core.SessionCredentialSet, profile *core.Profile) error {
	for _, name := range core.SessionCredentialNames {
		if err := a.store.PutCredential(ctx, set.Get(name)); err != nil {
			return err
		}
	}
	if err := a.store.PutValue(ctx, core.KeyFirstName, profile.FirstName); err != nil {
		return err
	}
	if err := a.store.PutValue(ctx, core.KeyLastName, profile.LastName); err != nil {
		return err
	}
	return a.store.PutValue(ctx, core.KeyAuthenticationCompleted, "true")
}

// markFailed clears the authenticated flag after a handshake that failed
// partway. Best-effort; the store may not be reachable either.
func (a *IdentityAuthenticator) markFailed(ctx context.Context) {
	if err := a.store.PutValue(ctx, core.KeyAuthenticationCompleted, "false"); err != nil {
		a.log.WithError(err).Warn("failed to clear authenticated flag")
	}
}

func isSessionCookie(name string) bool {
	for _, n := range core.SessionCredentialNames {
		if n == name {
			return true
		}
	}
	return false
}

// credentialFromCookie converts a provider session cookie into a stored
// credential. Max-Age wins when present; JWT-shaped values fall back to
// their exp claim; anything else keeps the provider's Expires attribute.
func credentialFromCookie(cookie *http.Cookie, now time.Time) *core.Credential {
	maxAge := time.Duration(cookie.MaxAge) * time.Second
	if cookie.MaxAge <= 0 {
		if exp, ok := core.JWTExpiry(cookie.Value); ok {
			maxAge = exp.Sub(now)
		} else if !cookie.Expires.IsZero() {
			maxAge = cookie.Expires.Sub(now)
		}
	}
	return &core.Credential{
		Name:      cookie.Name,
		Value:     cookie.Value,
		CreatedAt: now,
		MaxAge:    maxAge,
	}
}
