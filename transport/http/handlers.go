package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zenderhuis/portier"
	"github.com/zenderhuis/portier/core"
	"github.com/zenderhuis/portier/internal/metrics"
	"github.com/zenderhuis/portier/ports"
)

// SessionHandlers contains the HTTP handlers for the control API.
type SessionHandlers struct {
	authenticator *portier.IdentityAuthenticator
	refresher     *portier.SessionRefresher
	orchestrator  *portier.SessionOrchestrator
	logout        *portier.LogoutHandler
	store         ports.Store
}

// NewSessionHandlers creates the handler set for the control API.
func NewSessionHandlers(
	authenticator *portier.IdentityAuthenticator,
	refresher *portier.SessionRefresher,
	orchestrator *portier.SessionOrchestrator,
	logout *portier.LogoutHandler,
	store ports.Store,
) *SessionHandlers {
	return &SessionHandlers{
		authenticator: authenticator,
		refresher:     refresher,
		orchestrator:  orchestrator,
		logout:        logout,
		store:         store,
	}
}

// Login handles POST /session/login.
func (h *SessionHandlers) Login(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
		Secret   string `json:"secret" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	set, err := h.authenticator.Login(c.Request.Context(), req.Identity, req.Secret)
	if err != nil {
		metrics.Logins.WithLabelValues(loginOutcome(err)).Inc()
		writeError(c, err)
		return
	}
	metrics.Logins.WithLabelValues("ok").Inc()

	c.JSON(http.StatusOK, gin.H{
		"authenticated":  true,
		"session_expiry": set.RefreshToken.ExpiresAt(),
	})
}

// Status handles GET /session/status.
func (h *SessionHandlers) Status(c *gin.Context) {
	ctx := c.Request.Context()

	authenticated, err := h.store.GetValue(ctx, core.KeyAuthenticationCompleted)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	firstName, _ := h.store.GetValue(ctx, core.KeyFirstName)
	lastName, _ := h.store.GetValue(ctx, core.KeyLastName)

	now := time.Now()
	credentials := gin.H{}
	for _, name := range core.SessionCredentialNames {
		cred, err := h.store.GetCredential(ctx, name)
		if err != nil || cred == nil {
			credentials[name] = gin.H{"present": false}
			continue
		}
		credentials[name] = gin.H{
			"present":    true,
			"expires_at": cred.ExpiresAt(),
			"expired":    cred.Expired(now),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": authenticated == "true",
		"first_name":    firstName,
		"last_name":     lastName,
		"credentials":   credentials,
	})
}

// Refresh handles POST /session/refresh.
func (h *SessionHandlers) Refresh(c *gin.Context) {
	set, err := h.refresher.EnsureValid(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":        set.AccessToken.Value,
		"access_token_expiry": set.AccessToken.ExpiresAt(),
	})
}

// Logout handles POST /session/logout.
func (h *SessionHandlers) Logout(c *gin.Context) {
	if err := h.logout.Logout(c.Request.Context()); err != nil {
		// Local state is already cleared; report the failed provider
		// notification without undoing the logout.
		c.JSON(http.StatusOK, gin.H{
			"logged_out":        true,
			"provider_notified": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logged_out":        true,
		"provider_notified": true,
	})
}

// PlaybackToken handles POST /playback/token.
func (h *SessionHandlers) PlaybackToken(c *gin.Context) {
	var req struct {
		StreamClass string `json:"stream_class" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resolution, err := h.orchestrator.Resolve(c.Request.Context(), core.StreamClass(req.StreamClass))
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{
		"player_token":        resolution.PlayerToken.Value,
		"player_token_expiry": resolution.PlayerToken.Expiry,
	}
	if resolution.AccessToken != "" {
		resp["access_token"] = resolution.AccessToken
	}

	c.JSON(http.StatusOK, resp)
}

// writeError maps the typed error taxonomy to control API status codes.
// ErrReauthenticationRequired is the one outcome that should drive a
// re-login prompt, so it gets a distinct marker in the body.
func writeError(c *gin.Context, err error) {
	var incomplete *core.IncompleteSessionError
	var exchangeFailed *core.SessionExchangeFailedError
	var refreshFailed *core.RefreshFailedError
	var issuanceFailed *core.TokenIssuanceFailedError
	var netErr *core.NetworkError
	var parseErr *core.ParseError

	switch {
	case errors.Is(err, core.ErrReauthenticationRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "reauthentication_required": true})
	case errors.Is(err, core.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrUnknownStreamClass):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &netErr):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.As(err, &incomplete), errors.As(err, &exchangeFailed),
		errors.As(err, &refreshFailed), errors.As(err, &issuanceFailed),
		errors.As(err, &parseErr), errors.Is(err, core.ErrMissingAntiForgeryToken):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func loginOutcome(err error) string {
	var incomplete *core.IncompleteSessionError
	var exchangeFailed *core.SessionExchangeFailedError
	var netErr *core.NetworkError

	switch {
	case errors.Is(err, core.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.As(err, &incomplete):
		return "incomplete_session"
	case errors.As(err, &exchangeFailed):
		return "exchange_rejected"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "error"
	}
}
