package ports

import (
	"context"

	"github.com/zenderhuis/portier/core"
)

// Store is the durable key/value store the token consumers read from and the
// lifecycle components update. All writes are durable as soon as the call
// returns, and writes to a given key are atomic with respect to concurrent
// chains touching the same key.
type Store interface {
	// GetCredential returns the named credential, or nil when absent.
	GetCredential(ctx context.Context, name string) (*core.Credential, error)

	// PutCredential stores a credential under its name, overwriting any
	// previous value.
	PutCredential(ctx context.Context, c *core.Credential) error

	// GetValue returns a plain stored value, or "" when absent.
	GetValue(ctx context.Context, key string) (string, error)

	// PutValue stores a plain value under a key.
	PutValue(ctx context.Context, key, value string) error

	// Remove deletes the given keys. Missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error

	// Clear removes every key this subsystem owns.
	Clear(ctx context.Context) error
}
