package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenderhuis/portier/core"
)

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	s := NewFileStore(path)
	want := &core.Credential{
		Name:      core.CredentialRefreshToken,
		Value:     "refresh-v",
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		MaxAge:    31536000 * time.Second,
	}
	require.NoError(t, s.PutCredential(ctx, want))
	require.NoError(t, s.PutValue(ctx, core.KeyAuthenticationCompleted, "true"))

	// A new store instance on the same path sees the same state.
	reopened := NewFileStore(path)
	got, err := reopened.GetCredential(ctx, core.CredentialRefreshToken)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Value, got.Value)
	assert.Equal(t, want.MaxAge, got.MaxAge)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

	flag, err := reopened.GetValue(ctx, core.KeyAuthenticationCompleted)
	require.NoError(t, err)
	assert.Equal(t, "true", flag)
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "session.json")
	s := NewFileStore(path)

	cred, err := s.GetCredential(context.Background(), core.CredentialAccessToken)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFileStoreCorruptFileStartsOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewFileStore(path)
	ctx := context.Background()

	cred, err := s.GetCredential(ctx, core.CredentialAccessToken)
	require.NoError(t, err)
	assert.Nil(t, cred)

	// A write replaces the corrupt file with a valid one.
	require.NoError(t, s.PutValue(ctx, core.KeyFirstName, "An"))
	value, err := s.GetValue(ctx, core.KeyFirstName)
	require.NoError(t, err)
	assert.Equal(t, "An", value)
}

func TestFileStoreClearAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, s.PutCredential(ctx, &core.Credential{Name: core.CredentialAccessToken, Value: "v"}))
	require.NoError(t, s.PutValue(ctx, core.KeyPlayerTokenAnonymous, "pt"))

	require.NoError(t, s.Remove(ctx, core.KeyPlayerTokenAnonymous))
	value, err := s.GetValue(ctx, core.KeyPlayerTokenAnonymous)
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, s.Clear(ctx))
	cred, err := s.GetCredential(ctx, core.CredentialAccessToken)
	require.NoError(t, err)
	assert.Nil(t, cred)
}
