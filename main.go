// Command lastchat joins a Twitch channel and serves its most recent chat
// message as plain text. It:
//   - Loads configuration and initializes structured logging.
//   - Keeps an IRC connection to TWITCH_CHANNEL alive, storing each message
//     from someone other than the bot in a single-slot cache.
//   - Answers every request on HTTP_ADDR with that message, tagged "[NEW] "
//     while it is younger than FRESHNESS_WINDOW.
//   - Optionally exposes /healthz, /readyz and /metrics on OPS_ADDR.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/lastchat/chat"
	"github.com/onnwee/lastchat/config"
	"github.com/onnwee/lastchat/lastmsg"
	"github.com/onnwee/lastchat/server"
	"github.com/onnwee/lastchat/telemetry"
	"github.com/onnwee/lastchat/twitchapi"
)

func main() {
	if err := run(); err != nil {
		slog.Error("lastchat exited with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	setupLogger(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.ValidateChatReady(); err != nil {
		return err
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing(telemetry.TracingConfig{
		ServiceName:    "lastchat",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTelEndpoint,
		SampleRatio:    cfg.TraceSampleRatio,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		return fmt.Errorf("tracing initialization failed: %w", err)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds := twitchapi.Credentials{
		AccessToken:  cfg.TwitchOAuthToken,
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		RefreshToken: cfg.TwitchRefreshToken,
	}
	tokens, err := creds.TokenSource(ctx)
	if err != nil {
		return fmt.Errorf("twitch token source: %w", err)
	}

	cache := lastmsg.New(lastmsg.WithWindow(cfg.FreshnessWindow))
	listener := chat.NewListener(cfg.TwitchChannel, cfg.TwitchBotUsername, tokens, chat.NewIngester(cache), cfg.ReconnectMaxBackoff)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return server.Start(gctx, cfg.HTTPAddr, server.NewStatusHandler(cache)) })
	if cfg.OpsAddr != "" {
		g.Go(func() error { return server.Start(gctx, cfg.OpsAddr, server.NewOpsMux(listener.Ready)) })
	}
	g.Go(func() error {
		checkToken(gctx, tokens, cfg.TwitchBotUsername)
		return nil
	})

	err = g.Wait()
	slog.Info("shutting down")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// setupLogger configures the default slog logger. Defaults: level=info, format=text.
func setupLogger(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	var handler slog.Handler
	isJSON := strings.ToLower(format) == "json"
	if isJSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[isJSON]))
}

// checkToken is best-effort: it warns when the token belongs to another login or
// lacks chat:read. It runs beside the listeners so a slow token endpoint never delays them.
func checkToken(ctx context.Context, tokens oauth2.TokenSource, username string) {
	tok, err := tokens.Token()
	if err != nil {
		slog.Warn("twitch token fetch failed; listener will retry", slog.Any("err", err))
		return
	}
	vctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	info, err := twitchapi.ValidateToken(vctx, nil, tok.AccessToken)
	if err != nil {
		slog.Warn("twitch token validate failed", slog.Any("err", err))
		return
	}
	if !strings.EqualFold(info.Login, username) {
		slog.Warn("twitch token belongs to a different login; own messages will not be filtered",
			slog.String("token_login", info.Login), slog.String("bot_username", username))
	}
	if !info.HasScope("chat:read") {
		slog.Warn("twitch token lacks chat:read scope", slog.Any("scopes", info.Scopes))
	}
	slog.Info("twitch token validated", slog.String("login", info.Login), slog.Int("expires_in", info.ExpiresIn))
}
