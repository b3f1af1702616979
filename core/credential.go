// Package core holds the domain types of the credential lifecycle:
// credentials, the session credential set, stream classes and player tokens.
package core

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Names of the four session credentials issued by the provider's
// session-issuance endpoint. The provider sets them as cookies whose names
// match the store keys one to one.
const (
	CredentialIdentitySession     = "identitySession"
	CredentialAccessToken         = "accessToken"
	CredentialRefreshToken        = "refreshToken"
	CredentialRefreshExpiryMarker = "refreshExpiryMarker"
)

// SessionCredentialNames lists the four credentials that make up a session,
// in the order they are validated.
var SessionCredentialNames = []string{
	CredentialIdentitySession,
	CredentialAccessToken,
	CredentialRefreshToken,
	CredentialRefreshExpiryMarker,
}

// Store keys for state persisted alongside the session credentials.
const (
	KeyAuthenticationCompleted = "authenticationCompleted"
	KeyFirstName               = "firstName"
	KeyLastName                = "lastName"

	KeyPlayerTokenAnonymous           = "playerTokenAnonymous"
	KeyPlayerTokenAnonymousExpiry     = "playerTokenAnonymousExpiry"
	KeyPlayerTokenAuthenticated       = "playerTokenAuthenticated"
	KeyPlayerTokenAuthenticatedExpiry = "playerTokenAuthenticatedExpiry"
)

// Credential is a named short-lived value issued by the provider.
// Expiry is computed on read from CreatedAt and MaxAge rather than stored,
// so a serialized credential can never carry a stale expired flag.
type Credential struct {
	Name      string
	Value     string
	CreatedAt time.Time
	MaxAge    time.Duration
}

// credentialJSON is the serialized layout: max-age travels as whole seconds,
// matching what the provider hands out.
type credentialJSON struct {
	Name          string    `json:"name"`
	Value         string    `json:"value"`
	CreatedAt     time.Time `json:"createdAt"`
	MaxAgeSeconds int64     `json:"maxAgeSeconds"`
}

// MarshalJSON implements json.Marshaler.
func (c Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(credentialJSON{
		Name:          c.Name,
		Value:         c.Value,
		CreatedAt:     c.CreatedAt,
		MaxAgeSeconds: int64(c.MaxAge / time.Second),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var raw credentialJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Name = raw.Name
	c.Value = raw.Value
	c.CreatedAt = raw.CreatedAt
	c.MaxAge = time.Duration(raw.MaxAgeSeconds) * time.Second
	return nil
}

// ExpiresAt returns the instant at which the credential stops being valid.
func (c *Credential) ExpiresAt() time.Time {
	return c.CreatedAt.Add(c.MaxAge)
}

// Expired reports whether the credential is expired at the given instant.
func (c *Credential) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt())
}

// SessionCredentialSet holds the four interdependent credentials produced by
// a successful login. Either all four are present and coherent, or the set
// is treated as absent and re-authentication is required.
type SessionCredentialSet struct {
	IdentitySession     *Credential
	AccessToken         *Credential
	RefreshToken        *Credential
	RefreshExpiryMarker *Credential
}

// Get returns the credential with the given name, or nil.
func (s *SessionCredentialSet) Get(name string) *Credential {
	switch name {
	case CredentialIdentitySession:
		return s.IdentitySession
	case CredentialAccessToken:
		return s.AccessToken
	case CredentialRefreshToken:
		return s.RefreshToken
	case CredentialRefreshExpiryMarker:
		return s.RefreshExpiryMarker
	}
	return nil
}

// Set stores the credential under its name. Credentials with unknown names
// are ignored.
func (s *SessionCredentialSet) Set(c *Credential) {
	switch c.Name {
	case CredentialIdentitySession:
		s.IdentitySession = c
	case CredentialAccessToken:
		s.AccessToken = c
	case CredentialRefreshToken:
		s.RefreshToken = c
	case CredentialRefreshExpiryMarker:
		s.RefreshExpiryMarker = c
	}
}

// Complete reports whether all four credentials are present. A partial set
// forces re-authentication.
func (s *SessionCredentialSet) Complete() bool {
	return s.IdentitySession != nil &&
		s.AccessToken != nil &&
		s.RefreshToken != nil &&
		s.RefreshExpiryMarker != nil
}

// StreamClass scopes a player token to the kind of stream it unlocks.
type StreamClass string

const (
	// StreamClassAnonymous covers live channels; no user identity required.
	StreamClassAnonymous StreamClass = "anonymous"

	// StreamClassAuthenticated covers on-demand playback tied to the
	// logged-in user.
	StreamClassAuthenticated StreamClass = "authenticated"
)

// Valid reports whether the stream class is one of the two known classes.
func (c StreamClass) Valid() bool {
	return c == StreamClassAnonymous || c == StreamClassAuthenticated
}

// StoreKeys returns the value and expiry keys under which a player token for
// this class is persisted.
func (c StreamClass) StoreKeys() (valueKey, expiryKey string) {
	if c == StreamClassAuthenticated {
		return KeyPlayerTokenAuthenticated, KeyPlayerTokenAuthenticatedExpiry
	}
	return KeyPlayerTokenAnonymous, KeyPlayerTokenAnonymousExpiry
}

// PlayerToken is a short-lived token required by the streaming endpoint to
// authorize retrieval of a playable manifest URL. Exactly one instance per
// stream class is cached at a time.
type PlayerToken struct {
	StreamClass StreamClass `json:"streamClass"`
	Value       string      `json:"value"`
	Expiry      time.Time   `json:"expiry"`
}

// Expired reports whether the token is expired at the given instant.
func (t *PlayerToken) Expired(now time.Time) bool {
	return now.After(t.Expiry)
}

// Profile holds the display name parsed from the provider's credential
// endpoint response.
type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// JWTExpiry extracts the exp claim from a JWT-shaped credential value
// without verifying its signature. Used as a fallback when the provider
// sets a session cookie without a Max-Age; the token is still validated by the
// provider on every use, so an unverified parse is sufficient here.
func JWTExpiry(value string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
