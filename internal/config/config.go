// Package config loads portier configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the portier daemon.
type Config struct {
	// ListenAddr is the control API listen address.
	ListenAddr string

	// StorePath is the credential store file. Ignored when RedisURL is set.
	StorePath string

	// RedisURL switches the store and event publisher to Redis when
	// non-empty.
	RedisURL string

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string

	// HTTPTimeout bounds each provider call.
	HTTPTimeout time.Duration

	// Provider endpoints and static client material.
	LoginInitURL      string
	CredentialURL     string
	SessionURL        string
	RefreshURL        string
	PlayerTokenURL    string
	LogoutURL         string
	APIKey            string
	ClientID          string
	Referer           string
	AntiForgeryCookie string
	SessionExpiration int
}

// Load reads configuration from environment variables with defaults for
// everything that has a sensible one.
func Load() *Config {
	return &Config{
		ListenAddr:        getEnv("PORTIER_LISTEN_ADDR", "127.0.0.1:8475"),
		StorePath:         getEnv("PORTIER_STORE_PATH", defaultStorePath()),
		RedisURL:          getEnv("PORTIER_REDIS_URL", ""),
		LogLevel:          getEnv("PORTIER_LOG_LEVEL", "info"),
		HTTPTimeout:       getEnvDuration("PORTIER_HTTP_TIMEOUT", 15*time.Second),
		LoginInitURL:      getEnv("PORTIER_LOGIN_INIT_URL", ""),
		CredentialURL:     getEnv("PORTIER_CREDENTIAL_URL", ""),
		SessionURL:        getEnv("PORTIER_SESSION_URL", ""),
		RefreshURL:        getEnv("PORTIER_REFRESH_URL", ""),
		PlayerTokenURL:    getEnv("PORTIER_PLAYER_TOKEN_URL", ""),
		LogoutURL:         getEnv("PORTIER_LOGOUT_URL", ""),
		APIKey:            getEnv("PORTIER_API_KEY", ""),
		ClientID:          getEnv("PORTIER_CLIENT_ID", ""),
		Referer:           getEnv("PORTIER_REFERER", ""),
		AntiForgeryCookie: getEnv("PORTIER_ANTI_FORGERY_COOKIE", "OIDCXSRF"),
		SessionExpiration: getEnvInt("PORTIER_SESSION_EXPIRATION", 0),
	}
}

// Validate checks that all required configuration values are present.
func (c *Config) Validate() error {
	required := map[string]string{
		"PORTIER_LOGIN_INIT_URL":   c.LoginInitURL,
		"PORTIER_CREDENTIAL_URL":   c.CredentialURL,
		"PORTIER_SESSION_URL":      c.SessionURL,
		"PORTIER_REFRESH_URL":      c.RefreshURL,
		"PORTIER_PLAYER_TOKEN_URL": c.PlayerTokenURL,
		"PORTIER_LOGOUT_URL":       c.LogoutURL,
		"PORTIER_API_KEY":          c.APIKey,
		"PORTIER_CLIENT_ID":        c.ClientID,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if c.HTTPTimeout < time.Second {
		return fmt.Errorf("PORTIER_HTTP_TIMEOUT must be at least 1s, got %s", c.HTTPTimeout)
	}
	if c.RedisURL == "" && c.StorePath == "" {
		return fmt.Errorf("PORTIER_STORE_PATH is required when PORTIER_REDIS_URL is not set")
	}
	return nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "portier-session.json"
	}
	return home + "/.portier/session.json"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
