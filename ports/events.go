package ports

import "context"

// EventPublisher notifies interested parties (UI shell, sidecars, other
// devices sharing the session store) about auth state transitions. All
// publishes are best-effort; a publish failure never fails the operation
// that triggered it.
type EventPublisher interface {
	// PublishLogin announces a completed login for the given display name.
	PublishLogin(ctx context.Context, firstName, lastName string) error

	// PublishLogout announces that the local session has been cleared.
	PublishLogout(ctx context.Context) error

	// PublishReauthRequired announces that the session can no longer be
	// refreshed and the user must log in again.
	PublishReauthRequired(ctx context.Context, reason string) error
}
