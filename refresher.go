package portier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zenderhuis/portier/core"
	"github.com/zenderhuis/portier/internal/metrics"
	"github.com/zenderhuis/portier/ports"
)

// SessionRefresher guarantees the session credential set is current before a
// privileged action: no-op when nothing is expired, one refresh call when
// the access credentials lapsed, or core.ErrReauthenticationRequired when the
// refresh token itself is gone or expired.
type SessionRefresher struct {
	store    ports.Store
	events   ports.EventPublisher
	provider *ProviderConfig
	log      *logrus.Entry

	clock func() time.Time

	// mu serializes refreshes so one invocation never issues more than one
	// network call and concurrent chains converge on one stored set.
	mu sync.Mutex
}

// NewSessionRefresher creates a refresher backed by the given store. events
// may be nil.
func NewSessionRefresher(store ports.Store, events ports.EventPublisher, provider *ProviderConfig, log *logrus.Entry) *SessionRefresher {
	return &SessionRefresher{
		store:    store,
		events:   events,
		provider: provider,
		log:      log,
		clock:    time.Now,
	}
}

// EnsureValid returns a current session credential set, refreshing it first
// when needed. Idempotent and safe to call before every privileged action.
func (r *SessionRefresher) EnsureValid(ctx context.Context) (*core.SessionCredentialSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if set == nil {
		r.markReauthRequired(ctx, "session credential set absent or partial")
		return nil, core.ErrReauthenticationRequired
	}

	now := r.clock()

	// The refresh token's expiry is authoritative over all others: once it
	// lapses, nothing can be renewed.
	if set.RefreshToken.Expired(now) {
		r.markReauthRequired(ctx, "refresh token expired")
		return nil, core.ErrReauthenticationRequired
	}

	if !set.IdentitySession.Expired(now) && !set.AccessToken.Expired(now) {
		return set, nil
	}

	return r.refresh(ctx, set)
}

// AccessToken returns the current access token value after ensuring the set
// is valid. Catalog calls use it as a bearer credential.
func (r *SessionRefresher) AccessToken(ctx context.Context) (string, error) {
	set, err := r.EnsureValid(ctx)
	if err != nil {
		return "", err
	}
	return set.AccessToken.Value, nil
}

// load reads the four credentials from the store. A partial set is reported
// as nil: either all four are present and coherent, or none are.
func (r *SessionRefresher) load(ctx context.Context) (*core.SessionCredentialSet, error) {
	set := &core.SessionCredentialSet{}
	for _, name := range core.SessionCredentialNames {
		cred, err := r.store.GetCredential(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read credential %s: %w", name, err)
		}
		if cred == nil {
			return nil, nil
		}
		set.Set(cred)
	}
	return set, nil
}

// refresh exchanges the refresh token for renewed credentials. Only the
// credentials named in the response are overwritten; the rest keep their
// prior value and creation time. A 2xx response that leaves the access
// credentials expired counts as a dead session, not a success.
func (r *SessionRefresher) refresh(ctx context.Context, set *core.SessionCredentialSet) (*core.SessionCredentialSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.provider.RefreshURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: core.CredentialRefreshToken, Value: set.RefreshToken.Value})
	req.AddCookie(&http.Cookie{Name: core.CredentialRefreshExpiryMarker, Value: set.RefreshExpiryMarker.Value})

	client := &http.Client{Timeout: r.provider.timeout()}
	resp, err := doRequest(client, req, "refresh")
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// A failed refresh is not proof the session is dead: the flag is
		// only cleared on explicit refresh-token expiry.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Refreshes.WithLabelValues("failed").Inc()
		return nil, &core.RefreshFailedError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	now := r.clock()
	renewed := 0
	for _, cookie := range resp.Cookies() {
		if !isSessionCookie(cookie.Name) {
			continue
		}
		cred := credentialFromCookie(cookie, now)
		if err := r.store.PutCredential(ctx, cred); err != nil {
			return nil, fmt.Errorf("failed to store refreshed credential %s: %w", cookie.Name, err)
		}
		set.Set(cred)
		renewed++
	}

	// The provider completed the call but did not renew what had lapsed:
	// the session is beyond refreshing.
	if set.IdentitySession.Expired(now) || set.AccessToken.Expired(now) {
		metrics.Refreshes.WithLabelValues("failed").Inc()
		r.markReauthRequired(ctx, "refresh response left access credentials expired")
		return nil, core.ErrReauthenticationRequired
	}

	metrics.Refreshes.WithLabelValues("ok").Inc()
	r.log.WithField("renewed", renewed).Debug("session refreshed")

	return set, nil
}

// markReauthRequired clears the authenticated flag and announces that the
// user must log in again.
func (r *SessionRefresher) markReauthRequired(ctx context.Context, reason string) {
	if err := r.store.PutValue(ctx, core.KeyAuthenticationCompleted, "false"); err != nil {
		r.log.WithError(err).Warn("failed to clear authenticated flag")
	}
	r.log.WithField("reason", reason).Info("re-authentication required")
	if r.events != nil {
		if err := r.events.PublishReauthRequired(ctx, reason); err != nil {
			r.log.WithError(err).Warn("failed to publish reauth event")
		}
	}
}
