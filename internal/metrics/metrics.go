// Package metrics registers the Prometheus collectors for the credential
// lifecycle. Exposed on the control server's /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Logins counts login handshakes by outcome (ok, invalid_credentials,
	// incomplete_session, network, error).
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portier_logins_total",
		Help: "Login handshakes by outcome.",
	}, []string{"outcome"})

	// Refreshes counts refresh network calls by outcome (ok, failed).
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portier_refreshes_total",
		Help: "Session refresh calls by outcome.",
	}, []string{"outcome"})

	// PlayerTokens counts issued player tokens by stream class and source
	// (cache, network).
	PlayerTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portier_player_tokens_total",
		Help: "Player tokens handed out, by stream class and source.",
	}, []string{"class", "source"})

	// Resolutions counts orchestrator chains by stream class and terminal
	// state (ready, failed, canceled).
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portier_resolutions_total",
		Help: "Orchestrator resolutions by stream class and terminal state.",
	}, []string{"class", "state"})
)
