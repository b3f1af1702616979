package core

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAntiForgeryToken is returned when the login-init endpoint
	// does not set the anti-forgery cookie. Not retried.
	ErrMissingAntiForgeryToken = errors.New("anti-forgery token missing from login-init response")

	// ErrInvalidCredentials is returned when the credential endpoint
	// rejects the identity/secret pair. Surfaced verbatim to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrReauthenticationRequired is returned when the session credential
	// set is absent, partial, or past its refresh window. This is the only
	// error that should drive a UI-level re-login prompt.
	ErrReauthenticationRequired = errors.New("re-authentication required")

	// ErrUnknownStreamClass is returned for a stream class outside
	// anonymous/authenticated.
	ErrUnknownStreamClass = errors.New("unknown stream class")
)

// IncompleteSessionError is returned when the session-issuance endpoint sets
// a cookie count other than the four expected session cookies.
type IncompleteSessionError struct {
	Count int
}

func (e *IncompleteSessionError) Error() string {
	return fmt.Sprintf("incomplete session: provider set %d session cookies, expected %d", e.Count, len(SessionCredentialNames))
}

// SessionExchangeFailedError is returned when the session-issuance endpoint
// rejects the signed identity with a non-2xx status. Distinct from
// IncompleteSessionError, which is about the cookie count on an accepted
// exchange.
type SessionExchangeFailedError struct {
	StatusCode int
}

func (e *SessionExchangeFailedError) Error() string {
	return fmt.Sprintf("session exchange rejected: status %d", e.StatusCode)
}

// RefreshFailedError is returned when the token-refresh endpoint answers
// non-2xx. It does not clear the authenticated flag; only refresh-token
// expiry does that.
type RefreshFailedError struct {
	StatusCode int
	Message    string
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("session refresh failed: status %d: %s", e.StatusCode, e.Message)
}

// TokenIssuanceFailedError is returned when the player-token endpoint
// answers non-2xx.
type TokenIssuanceFailedError struct {
	StatusCode int
}

func (e *TokenIssuanceFailedError) Error() string {
	return fmt.Sprintf("player token issuance failed: status %d", e.StatusCode)
}

// NetworkError wraps a transport or timeout failure. It is transient from
// the caller's point of view and never retried by this subsystem.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError wraps a malformed or unexpected provider response body.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
