// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (Twitch chat), use ValidateChatReady.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Twitch
	TwitchChannel      string `env:"TWITCH_CHANNEL"`
	TwitchBotUsername  string `env:"TWITCH_BOT_USERNAME"`
	TwitchOAuthToken   string `env:"TWITCH_OAUTH_TOKEN"`
	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	TwitchRefreshToken string `env:"TWITCH_REFRESH_TOKEN"`

	// Chat connection
	ReconnectMaxBackoff time.Duration `env:"CHAT_RECONNECT_MAX_BACKOFF" envDefault:"2m"`

	// Status
	FreshnessWindow time.Duration `env:"FRESHNESS_WINDOW" envDefault:"9s"`

	// HTTP
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":3999"`
	OpsAddr  string `env:"OPS_ADDR"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Tracing
	OTelEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	TraceSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1"`
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are missing;
// use ValidateChatReady() before starting the chat listener.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// IRC channel names are lowercase logins without the leading '#'.
	cfg.TwitchChannel = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.TwitchChannel), "#"))
	cfg.TwitchBotUsername = strings.ToLower(strings.TrimSpace(cfg.TwitchBotUsername))

	if cfg.FreshnessWindow <= 0 {
		return nil, fmt.Errorf("invalid FRESHNESS_WINDOW %s: must be positive", cfg.FreshnessWindow)
	}
	if cfg.ReconnectMaxBackoff <= 0 {
		return nil, fmt.Errorf("invalid CHAT_RECONNECT_MAX_BACKOFF %s: must be positive", cfg.ReconnectMaxBackoff)
	}
	if cfg.TraceSampleRatio < 0 || cfg.TraceSampleRatio > 1 {
		return nil, fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG %g: must be within [0, 1]", cfg.TraceSampleRatio)
	}
	return cfg, nil
}

// CanRefreshToken reports whether the refresh-token grant is fully configured.
func (c *Config) CanRefreshToken() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != "" && c.TwitchRefreshToken != ""
}

// ValidateChatReady checks the fields required to join chat.
func (c *Config) ValidateChatReady() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" {
		return errors.New("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME")
	}
	if c.TwitchOAuthToken == "" && !c.CanRefreshToken() {
		return errors.New("missing twitch credentials: set TWITCH_OAUTH_TOKEN or TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET and TWITCH_REFRESH_TOKEN")
	}
	return nil
}
