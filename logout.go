package portier

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/zenderhuis/portier/core"
	"github.com/zenderhuis/portier/ports"
)

// LogoutHandler clears all local session state and notifies the provider.
// The local clear comes first and always happens; a failed network
// notification is reported but leaves the store cleared.
type LogoutHandler struct {
	store    ports.Store
	events   ports.EventPublisher
	provider *ProviderConfig
	log      *logrus.Entry
}

// NewLogoutHandler creates a logout handler backed by the given store.
// events may be nil.
func NewLogoutHandler(store ports.Store, events ports.EventPublisher, provider *ProviderConfig, log *logrus.Entry) *LogoutHandler {
	return &LogoutHandler{
		store:    store,
		events:   events,
		provider: provider,
		log:      log,
	}
}

// Logout removes the session credential set, both cached player tokens, the
// profile display name and the authenticated flag, then best-effort notifies
// the provider's logout endpoint.
func (h *LogoutHandler) Logout(ctx context.Context) error {
	if err := h.store.Clear(ctx); err != nil {
		return err
	}

	h.log.Info("local session cleared")

	if h.events != nil {
		if err := h.events.PublishLogout(ctx); err != nil {
			h.log.WithError(err).Warn("failed to publish logout event")
		}
	}

	return h.notifyProvider(ctx)
}

func (h *LogoutHandler) notifyProvider(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.provider.LogoutURL, nil)
	if err != nil {
		return &core.NetworkError{Op: "logout", Err: err}
	}
	req.Header.Set("Referer", h.provider.Referer)

	client := &http.Client{Timeout: h.provider.timeout()}
	resp, err := doRequest(client, req, "logout")
	if err != nil {
		return err
	}
	drainAndClose(resp.Body)

	return nil
}
