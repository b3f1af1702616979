package portier

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/zenderhuis/portier/adapters/store"
	"github.com/zenderhuis/portier/core"
	"github.com/zenderhuis/portier/ports"
)

const testAntiForgeryCookie = "OIDCXSRF"

// testProvider returns a provider config pointing every endpoint at base.
func testProvider(base string) *ProviderConfig {
	return &ProviderConfig{
		LoginInitURL:      base + "/login-init",
		CredentialURL:     base + "/accounts.login",
		SessionURL:        base + "/perform-login",
		RefreshURL:        base + "/refresh",
		PlayerTokenURL:    base + "/tokens",
		LogoutURL:         base + "/logout",
		APIKey:            "test-api-key",
		ClientID:          "test-client-id",
		Referer:           "https://www.example.be/",
		AntiForgeryCookie: testAntiForgeryCookie,
		SessionExpiration: 0,
		Timeout:           5 * time.Second,
	}
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// seedSession stores a full credential set created at the given offsets
// before now. maxAges maps credential name to its max-age; names not listed
// get one hour.
func seedSession(t *testing.T, s ports.Store, now time.Time, age time.Duration, maxAges map[string]time.Duration) {
	t.Helper()
	for _, name := range core.SessionCredentialNames {
		maxAge, ok := maxAges[name]
		if !ok {
			maxAge = time.Hour
		}
		err := s.PutCredential(context.Background(), &core.Credential{
			Name:      name,
			Value:     name + "-value",
			CreatedAt: now.Add(-age),
			MaxAge:    maxAge,
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.PutValue(context.Background(), core.KeyAuthenticationCompleted, "true"))
}

func newTestStore() ports.Store {
	return store.NewMemoryStore()
}
