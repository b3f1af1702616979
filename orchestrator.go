package portier

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zenderhuis/portier/core"
	"github.com/zenderhuis/portier/internal/metrics"
)

// SessionOrchestrator is the facade invoked before any privileged action.
// Per request it decides which lifecycle components must run, chains them
// strictly sequentially, and reports one terminal outcome. It never retries
// and never triggers re-login itself; the caller reacts to
// core.ErrReauthenticationRequired.
type SessionOrchestrator struct {
	refresher *SessionRefresher
	issuer    *PlaybackTokenIssuer
	log       *logrus.Entry
}

// NewSessionOrchestrator wires the refresher and issuer into one facade.
func NewSessionOrchestrator(refresher *SessionRefresher, issuer *PlaybackTokenIssuer, log *logrus.Entry) *SessionOrchestrator {
	return &SessionOrchestrator{
		refresher: refresher,
		issuer:    issuer,
		log:       log,
	}
}

// Resolution is the successful outcome of a resolve chain: a ready-to-use
// player token, plus the raw access token for authenticated-scope callers
// that also need a bearer credential.
type Resolution struct {
	PlayerToken *core.PlayerToken
	AccessToken string
}

// Resolve runs the chain for one playback or privileged-action request.
// Authenticated scope resolves the session first and short-circuits on
// failure without attempting a player-token call; anonymous scope goes
// straight to the issuer. The context is checked at the start and between
// steps so an abandoned request never issues further network calls.
func (o *SessionOrchestrator) Resolve(ctx context.Context, class core.StreamClass) (*Resolution, error) {
	if !class.Valid() {
		return nil, core.ErrUnknownStreamClass
	}

	if err := ctx.Err(); err != nil {
		metrics.Resolutions.WithLabelValues(string(class), "canceled").Inc()
		return nil, err
	}

	log := o.log.WithFields(logrus.Fields{
		"request_id": uuid.New().String(),
		"class":      class,
	})

	resolution := &Resolution{}

	if class == core.StreamClassAuthenticated {
		set, err := o.refresher.EnsureValid(ctx)
		if err != nil {
			log.WithError(err).Info("session resolution failed")
			metrics.Resolutions.WithLabelValues(string(class), "failed").Inc()
			return nil, err
		}
		resolution.AccessToken = set.AccessToken.Value
	}

	if err := ctx.Err(); err != nil {
		metrics.Resolutions.WithLabelValues(string(class), "canceled").Inc()
		return nil, err
	}

	token, err := o.issuer.Issue(ctx, class)
	if err != nil {
		log.WithError(err).Info("player token resolution failed")
		metrics.Resolutions.WithLabelValues(string(class), "failed").Inc()
		return nil, err
	}

	resolution.PlayerToken = token
	metrics.Resolutions.WithLabelValues(string(class), "ready").Inc()
	log.Debug("resolution ready")

	return resolution, nil
}
