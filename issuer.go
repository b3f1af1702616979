package portier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zenderhuis/portier/core"
	"github.com/zenderhuis/portier/internal/metrics"
	"github.com/zenderhuis/portier/ports"
)

// PlaybackTokenIssuer issues short-lived, stream-class-scoped player tokens,
// reusing a cached unexpired token when possible and otherwise exchanging an
// identity credential for a new one.
type PlaybackTokenIssuer struct {
	store    ports.Store
	provider *ProviderConfig
	log      *logrus.Entry

	clock func() time.Time

	// Per-class locks: two concurrent issuances for the same class converge
	// on a single stored token instead of racing their writes.
	anonMu sync.Mutex
	authMu sync.Mutex
}

// NewPlaybackTokenIssuer creates an issuer backed by the given store.
func NewPlaybackTokenIssuer(store ports.Store, provider *ProviderConfig, log *logrus.Entry) *PlaybackTokenIssuer {
	return &PlaybackTokenIssuer{
		store:    store,
		provider: provider,
		log:      log,
		clock:    time.Now,
	}
}

// playerTokenResponse is the JSON body of the player-token endpoint.
// expirationDate is an absolute instant, not a duration.
type playerTokenResponse struct {
	Value  string    `json:"vrtPlayerToken"`
	Expiry time.Time `json:"expirationDate"`
}

// Issue returns a player token for the given stream class. The anonymous
// class never requires an identity session; the authenticated class fails
// with core.ErrReauthenticationRequired when none is stored.
func (i *PlaybackTokenIssuer) Issue(ctx context.Context, class core.StreamClass) (*core.PlayerToken, error) {
	if !class.Valid() {
		return nil, core.ErrUnknownStreamClass
	}

	mu := i.classLock(class)
	mu.Lock()
	defer mu.Unlock()

	if cached, err := i.cached(ctx, class); err != nil {
		return nil, err
	} else if cached != nil {
		metrics.PlayerTokens.WithLabelValues(string(class), "cache").Inc()
		return cached, nil
	}

	identityToken := ""
	if class == core.StreamClassAuthenticated {
		cred, err := i.store.GetCredential(ctx, core.CredentialIdentitySession)
		if err != nil {
			return nil, fmt.Errorf("failed to read identity session: %w", err)
		}
		if cred == nil {
			return nil, core.ErrReauthenticationRequired
		}
		identityToken = cred.Value
	}

	token, err := i.exchange(ctx, class, identityToken)
	if err != nil {
		return nil, err
	}

	if err := i.persist(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store player token: %w", err)
	}

	metrics.PlayerTokens.WithLabelValues(string(class), "network").Inc()
	i.log.WithFields(logrus.Fields{
		"class":  class,
		"expiry": token.Expiry,
	}).Debug("player token issued")

	return token, nil
}

// cached returns the stored token for the class when present and unexpired.
// Expiry is compared against now at each call, never cached as a boolean.
func (i *PlaybackTokenIssuer) cached(ctx context.Context, class core.StreamClass) (*core.PlayerToken, error) {
	valueKey, expiryKey := class.StoreKeys()

	value, err := i.store.GetValue(ctx, valueKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached player token: %w", err)
	}
	if value == "" {
		return nil, nil
	}

	expiryRaw, err := i.store.GetValue(ctx, expiryKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read player token expiry: %w", err)
	}
	expiry, err := time.Parse(time.RFC3339, expiryRaw)
	if err != nil {
		// An unreadable expiry makes the cached token unusable; fall
		// through to issuing a fresh one.
		return nil, nil
	}

	token := &core.PlayerToken{StreamClass: class, Value: value, Expiry: expiry}
	if token.Expired(i.clock()) {
		return nil, nil
	}
	return token, nil
}

// exchange requests a new player token from the provider.
func (i *PlaybackTokenIssuer) exchange(ctx context.Context, class core.StreamClass, identityToken string) (*core.PlayerToken, error) {
	payload := map[string]string{}
	if identityToken != "" {
		payload["identityToken"] = identityToken
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode player token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.provider.PlayerTokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build player token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: i.provider.timeout()}
	resp, err := doRequest(client, req, "player-token")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.TokenIssuanceFailedError{StatusCode: resp.StatusCode}
	}

	parsed := new(playerTokenResponse)
	if err := json.NewDecoder(resp.Body).Decode(parsed); err != nil {
		return nil, &core.ParseError{What: "player token response", Err: err}
	}
	if parsed.Value == "" || parsed.Expiry.IsZero() {
		return nil, &core.ParseError{What: "player token response", Err: fmt.Errorf("missing vrtPlayerToken or expirationDate")}
	}

	return &core.PlayerToken{StreamClass: class, Value: parsed.Value, Expiry: parsed.Expiry}, nil
}

// persist overwrites the cached token for the class.
func (i *PlaybackTokenIssuer) persist(ctx context.Context, token *core.PlayerToken) error {
	valueKey, expiryKey := token.StreamClass.StoreKeys()
	if err := i.store.PutValue(ctx, valueKey, token.Value); err != nil {
		return err
	}
	return i.store.PutValue(ctx, expiryKey, token.Expiry.Format(time.RFC3339))
}

func (i *PlaybackTokenIssuer) classLock(class core.StreamClass) *sync.Mutex {
	if class == core.StreamClassAuthenticated {
		return &i.authMu
	}
	return &i.anonMu
}
