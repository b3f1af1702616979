package portier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenderhuis/portier/core"
)

// refreshProvider fakes the token-refresh endpoint and counts calls.
type refreshProvider struct {
	calls   atomic.Int64
	status  int
	cookies []*http.Cookie

	lastCookieHeader string
}

func (p *refreshProvider) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.calls.Add(1)
		p.lastCookieHeader = r.Header.Get("Cookie")
		for _, cookie := range p.cookies {
			http.SetCookie(w, cookie)
		}
		if p.status != 0 {
			w.WriteHeader(p.status)
		}
	}))
}

func newRefresher(t *testing.T, base string, now time.Time) *SessionRefresher {
	t.Helper()
	r := NewSessionRefresher(newTestStore(), nil, testProvider(base), testLogger())
	r.clock = func() time.Time { return now }
	return r
}

func TestEnsureValidFreshInstallRequiresReauth(t *testing.T) {
	provider := &refreshProvider{}
	srv := provider.server()
	defer srv.Close()

	now := time.Now()
	refresher := newRefresher(t, srv.URL, now)

	_, err := refresher.EnsureValid(context.Background())
	assert.ErrorIs(t, err, core.ErrReauthenticationRequired)
	assert.EqualValues(t, 0, provider.calls.Load())

	flag, _ := refresher.store.GetValue(context.Background(), core.KeyAuthenticationCompleted)
	assert.Equal(t, "false", flag)
}

func TestEnsureValidPartialSetRequiresReauth(t *testing.T) {
	provider := &refreshProvider{}
	srv := provider.server()
	defer srv.Close()

	now := time.Now()
	refresher := newRefresher(t, srv.URL, now)
	seedSession(t, refresher.store, now, 0, nil)
	require.NoError(t, refresher.store.Remove(context.Background(), core.CredentialRefreshExpiryMarker))

	_, err := refresher.EnsureValid(context.Background())
	assert.ErrorIs(t, err, core.ErrReauthenticationRequired)
	assert.EqualValues(t, 0, provider.calls.Load())
}

func TestEnsureValidExpiredRefreshTokenIsAuthoritative(t *testing.T) {
	provider := &refreshProvider{}
	srv := provider.server()
	defer srv.Close()

	now := time.Now()
	refresher := newRefresher(t, srv.URL, now)

	// Everything else is fresh; only the refresh token has lapsed.
	seedSession(t, refresher.store, now, 0, map[string]time.Duration{
		core.CredentialRefreshToken: -time.Minute,
	})

	_, err := refresher.EnsureValid(context.Background())
	assert.ErrorIs(t, err, core.ErrReauthenticationRequired)
	assert.EqualValues(t, 0, provider.calls.Load())

	flag, _ := refresher.store.GetValue(context.Background(), core.KeyAuthenticationCompleted)
	assert.Equal(t, "false", flag)
}

func TestEnsureValidNothingExpiredMakesNoNetworkCall(t *testing.T) {
	provider := &refreshProvider{}
	srv := provider.server()
	defer srv.Close()

	now := time.Now()
	refresher := newRefresher(t, srv.URL, now)
	seedSession(t, refresher.store, now, 0, nil)

	set, err := refresher.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.True(t, set.Complete())
	assert.EqualValues(t, 0, provider.calls.Load())
}

func TestEnsureValidExpiredAccessTokenRefreshesOnce(t *testing.T) {
	now := time.Now()
	provider := &refreshProvider{
		cookies: []*http.Cookie{
			{Name: core.CredentialAccessToken, Value: "access-new", MaxAge: 3600},
			{Name: core.CredentialIdentitySession, Value: "ident-new", MaxAge: 900},
		},
	}
	srv := provider.server()
	defer srv.Close()

	refresher := newRefresher(t, srv.URL, now)

	// accessToken expired 400s ago, refreshToken good for a year.
	seedSession(t, refresher.store, now, 4000*time.Second, map[string]time.Duration{
		core.CredentialAccessToken:         3600 * time.Second,
		core.CredentialIdentitySession:     3600 * time.Second,
		core.CredentialRefreshToken:        31536000 * time.Second,
		core.CredentialRefreshExpiryMarker: 31536000 * time.Second,
	})

	set, err := refresher.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, provider.calls.Load())

	// The refresh call carried the composite cookie header.
	assert.Contains(t, provider.lastCookieHeader, "refreshToken=refreshToken-value")
	assert.Contains(t, provider.lastCookieHeader, "refreshExpiryMarker=refreshExpiryMarker-value")

	// Only the credentials named in the response were overwritten.
	assert.Equal(t, "access-new", set.AccessToken.Value)
	assert.Equal(t, now, set.AccessToken.CreatedAt)
	assert.Equal(t, "ident-new", set.IdentitySession.Value)

	refresh, err := refresher.store.GetCredential(context.Background(), core.CredentialRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refreshToken-value", refresh.Value)
	assert.Equal(t, now.Add(-4000*time.Second).Unix(), refresh.CreatedAt.Unix())
}

func TestEnsureValidRefreshWithoutRenewalRequiresReauth(t *testing.T) {
	now := time.Now()

	// The provider answers 200 but sets no cookies, so the expired access
	// token stays expired. That must not be reported as a valid session.
	provider := &refreshProvider{}
	srv := provider.server()
	defer srv.Close()

	refresher := newRefresher(t, srv.URL, now)
	seedSession(t, refresher.store, now, 4000*time.Second, map[string]time.Duration{
		core.CredentialAccessToken:         3600 * time.Second,
		core.CredentialIdentitySession:     3600 * time.Second,
		core.CredentialRefreshToken:        31536000 * time.Second,
		core.CredentialRefreshExpiryMarker: 31536000 * time.Second,
	})

	set, err := refresher.EnsureValid(context.Background())
	assert.ErrorIs(t, err, core.ErrReauthenticationRequired)
	assert.Nil(t, set)
	assert.EqualValues(t, 1, provider.calls.Load())

	flag, _ := refresher.store.GetValue(context.Background(), core.KeyAuthenticationCompleted)
	assert.Equal(t, "false", flag)
}

func TestEnsureValidRefreshRejectedLeavesFlagUnchanged(t *testing.T) {
	now := time.Now()
	provider := &refreshProvider{status: http.StatusUnauthorized}
	srv := provider.server()
	defer srv.Close()

	refresher := newRefresher(t, srv.URL, now)
	seedSession(t, refresher.store, now, 4000*time.Second, map[string]time.Duration{
		core.CredentialAccessToken:         3600 * time.Second,
		core.CredentialIdentitySession:     3600 * time.Second,
		core.CredentialRefreshToken:        31536000 * time.Second,
		core.CredentialRefreshExpiryMarker: 31536000 * time.Second,
	})

	_, err := refresher.EnsureValid(context.Background())

	var refreshFailed *core.RefreshFailedError
	require.ErrorAs(t, err, &refreshFailed)
	assert.Equal(t, http.StatusUnauthorized, refreshFailed.StatusCode)

	// Only explicit refresh-token expiry clears the flag; a rejected
	// refresh leaves it alone.
	flag, _ := refresher.store.GetValue(context.Background(), core.KeyAuthenticationCompleted)
	assert.Equal(t, "true", flag)
}

func TestEnsureValidAfterLoginScenario(t *testing.T) {
	refreshCalls := &refreshProvider{}
	refreshSrv := refreshCalls.server()
	defer refreshSrv.Close()

	login := &loginProvider{
		t:              t,
		antiForgery:    "af-1",
		credentialBody: validCredentialJSON,
		sessionCookies: fullSessionCookies(),
	}
	loginSrv := login.server()
	defer loginSrv.Close()

	credStore := newTestStore()

	// Fresh install: nothing stored yet.
	cfg := testProvider(loginSrv.URL)
	cfg.RefreshURL = refreshSrv.URL
	refresher := NewSessionRefresher(credStore, nil, cfg, testLogger())

	_, err := refresher.EnsureValid(context.Background())
	assert.ErrorIs(t, err, core.ErrReauthenticationRequired)

	// Login, then ensure again: everything fresh, no refresh call.
	auth := NewIdentityAuthenticator(credStore, nil, cfg, testLogger())
	_, err = auth.Login(context.Background(), "user@example.com", "secret")
	require.NoError(t, err)

	set, err := refresher.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.True(t, set.Complete())
	assert.EqualValues(t, 0, refreshCalls.calls.Load())
}

func TestAccessTokenReturnsBearerValue(t *testing.T) {
	provider := &refreshProvider{}
	srv := provider.server()
	defer srv.Close()

	now := time.Now()
	refresher := newRefresher(t, srv.URL, now)
	seedSession(t, refresher.store, now, 0, nil)

	value, err := refresher.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "accessToken-value", value)
}
