package portier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenderhuis/portier/core"
)

func TestLogoutClearsStoreAndNotifiesProvider(t *testing.T) {
	var notified atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notified.Add(1)
		assert.Equal(t, "https://www.example.be/", r.Header.Get("Referer"))
	}))
	defer srv.Close()

	credStore := newTestStore()
	now := time.Now()
	seedSession(t, credStore, now, 0, nil)
	ctx := context.Background()
	require.NoError(t, credStore.PutValue(ctx, core.KeyPlayerTokenAnonymous, "pt-anon"))
	require.NoError(t, credStore.PutValue(ctx, core.KeyPlayerTokenAuthenticated, "pt-auth"))

	handler := NewLogoutHandler(credStore, nil, testProvider(srv.URL), testLogger())
	require.NoError(t, handler.Logout(ctx))
	assert.EqualValues(t, 1, notified.Load())

	for _, name := range core.SessionCredentialNames {
		cred, err := credStore.GetCredential(ctx, name)
		require.NoError(t, err)
		assert.Nil(t, cred, name)
	}
	for _, key := range []string{core.KeyPlayerTokenAnonymous, core.KeyPlayerTokenAuthenticated, core.KeyAuthenticationCompleted} {
		value, err := credStore.GetValue(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, value, key)
	}
}

func TestLogoutClearsStoreEvenWhenProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // reject all connections

	credStore := newTestStore()
	now := time.Now()
	seedSession(t, credStore, now, 0, nil)

	handler := NewLogoutHandler(credStore, nil, testProvider(srv.URL), testLogger())

	err := handler.Logout(context.Background())
	var netErr *core.NetworkError
	require.ErrorAs(t, err, &netErr)

	// The local clear happened first and stuck.
	ctx := context.Background()
	for _, name := range core.SessionCredentialNames {
		cred, err := credStore.GetCredential(ctx, name)
		require.NoError(t, err)
		assert.Nil(t, cred, name)
	}
}
