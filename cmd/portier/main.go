package main

import (
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"

	"github.com/zenderhuis/portier"
	"github.com/zenderhuis/portier/adapters/events"
	"github.com/zenderhuis/portier/adapters/store"
	"github.com/zenderhuis/portier/internal/config"
	"github.com/zenderhuis/portier/internal/logging"
	"github.com/zenderhuis/portier/ports"
	transport "github.com/zenderhuis/portier/transport/http"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.NewLogger("portier", cfg.LogLevel)

	provider := &portier.ProviderConfig{
		LoginInitURL:      cfg.LoginInitURL,
		CredentialURL:     cfg.CredentialURL,
		SessionURL:        cfg.SessionURL,
		RefreshURL:        cfg.RefreshURL,
		PlayerTokenURL:    cfg.PlayerTokenURL,
		LogoutURL:         cfg.LogoutURL,
		APIKey:            cfg.APIKey,
		ClientID:          cfg.ClientID,
		Referer:           cfg.Referer,
		AntiForgeryCookie: cfg.AntiForgeryCookie,
		SessionExpiration: cfg.SessionExpiration,
		Timeout:           cfg.HTTPTimeout,
	}

	wmLogger := watermill.NewStdLogger(false, false)

	// Redis switches both the credential store and the event stream to a
	// shared backend; the default is a local session file with in-process
	// events.
	var credStore ports.Store
	var publisher message.Publisher
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient := redis.NewClient(opts)

		credStore = store.NewRedisStore(redisClient)

		publisher, err = redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			wmLogger,
		)
		if err != nil {
			log.Fatalf("Failed to create Redis publisher: %v", err)
		}
	} else {
		credStore = store.NewFileStore(cfg.StorePath)
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	}

	eventPub := events.NewWatermillPublisher(publisher)

	authenticator := portier.NewIdentityAuthenticator(credStore, eventPub, provider, logger.WithField("component", "authenticator"))
	refresher := portier.NewSessionRefresher(credStore, eventPub, provider, logger.WithField("component", "refresher"))
	issuer := portier.NewPlaybackTokenIssuer(credStore, provider, logger.WithField("component", "issuer"))
	orchestrator := portier.NewSessionOrchestrator(refresher, issuer, logger.WithField("component", "orchestrator"))
	logoutHandler := portier.NewLogoutHandler(credStore, eventPub, provider, logger.WithField("component", "logout"))

	handlers := transport.NewSessionHandlers(authenticator, refresher, orchestrator, logoutHandler, credStore)
	router := transport.SetupRouter(handlers, logger.WithField("component", "http"))

	logger.WithField("addr", cfg.ListenAddr).Info("control api listening")
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start control api: %v", err)
	}
}
