package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	twitch "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/oauth2"

	"github.com/onnwee/lastchat/telemetry"
	"github.com/onnwee/lastchat/twitchapi"
)

// DefaultIRCAddress is the Twitch IRC TLS endpoint.
const DefaultIRCAddress = "irc.chat.twitch.tv:6697"

var errConnectionClosed = errors.New("irc connection closed")

// ircClient is the part of *twitch.Client the listener drives.
type ircClient interface {
	OnConnect(callback func())
	OnPrivateMessage(callback func(message twitch.PrivateMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

func newTwitchClient(addr, username, password string) ircClient {
	c := twitch.NewClient(username, password)
	c.IrcAddress = addr
	return c
}

// Listener keeps one IRC connection to a single channel alive and forwards its
// messages to an Ingester.
type Listener struct {
	channel  string
	username string
	addr     string
	tokens   oauth2.TokenSource
	ingester *Ingester

	initialBackoff time.Duration
	maxBackoff     time.Duration
	newClient      func(addr, username, password string) ircClient

	ready atomic.Bool
}

// NewListener builds a Listener for channel, logging in as username with tokens.
func NewListener(channel, username string, tokens oauth2.TokenSource, ingester *Ingester, maxBackoff time.Duration) *Listener {
	if maxBackoff <= 0 {
		maxBackoff = 2 * time.Minute
	}
	return &Listener{
		channel:        strings.ToLower(strings.TrimPrefix(channel, "#")),
		username:       strings.ToLower(username),
		addr:           DefaultIRCAddress,
		tokens:         tokens,
		ingester:       ingester,
		initialBackoff: time.Second,
		maxBackoff:     maxBackoff,
		newClient:      newTwitchClient,
	}
}

// Ready reports whether the listener has connected at least once.
func (l *Listener) Ready() bool { return l.ready.Load() }

// Run connects and reconnects until ctx is cancelled. It returns nil on
// cancellation; connection and token errors are logged and retried.
func (l *Listener) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.initialBackoff
	b.MaxInterval = l.maxBackoff
	b.Reset()

	slog.Info("chat listener starting", slog.String("channel", l.channel), slog.String("username", l.username), slog.String("component", "chat"))
	for {
		connected, err := l.runOnce(ctx)
		if ctx.Err() != nil {
			slog.Info("chat listener stopped", slog.String("channel", l.channel), slog.String("component", "chat"))
			return nil
		}
		if connected {
			// A session was established; start the next wait from the shortest delay.
			b.Reset()
		}
		delay := b.NextBackOff()
		slog.Warn("chat connection lost; reconnecting", slog.Any("err", err), slog.Duration("backoff", delay), slog.String("component", "chat"))
		telemetry.IncReconnectAttempts()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// runOnce performs one connect/serve cycle and reports whether the connection
// was ever established.
func (l *Listener) runOnce(ctx context.Context) (bool, error) {
	tok, err := l.fetchToken(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch irc token: %w", err)
	}

	client := l.newClient(l.addr, l.username, twitchapi.IRCPassword(tok.AccessToken))
	var connected atomic.Bool
	client.OnConnect(func() {
		connected.Store(true)
		l.ready.Store(true)
		telemetry.SetChatConnected(true)
		host, port := splitAddr(l.addr)
		l.ingester.OnConnect(host, port)
	})
	client.OnPrivateMessage(l.handlePrivateMessage)
	client.Join(l.channel)

	// Close the client on ctx cancellation. Disconnect fails until the
	// connection is active, so keep trying until Connect has returned.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			if err := client.Disconnect(); err == nil {
				return
			}
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	err = client.Connect()
	if connected.Load() {
		telemetry.SetChatConnected(false)
	}
	if err == nil {
		err = errConnectionClosed
	}
	if errors.Is(err, twitch.ErrClientDisconnected) && ctx.Err() != nil {
		return connected.Load(), ctx.Err()
	}
	return connected.Load(), fmt.Errorf("twitch chat connect: %w", err)
}

// fetchToken returns early on ctx cancellation; an abandoned fetch ends with the
// token source's own HTTP timeout.
func (l *Listener) fetchToken(ctx context.Context) (*oauth2.Token, error) {
	type result struct {
		tok *oauth2.Token
		err error
	}
	ch := make(chan result, 1)
	go func() {
		tok, err := l.tokens.Token()
		ch <- result{tok, err}
	}()
	select {
	case r := <-ch:
		return r.tok, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) handlePrivateMessage(msg twitch.PrivateMessage) {
	if !strings.EqualFold(msg.Channel, l.channel) && msg.Channel != "" {
		return
	}
	isSelf := strings.EqualFold(msg.User.Name, l.username)
	l.ingester.OnMessage(msg.User.Name, msg.Message, isSelf)
}

// splitAddr splits host:port, falling back to the whole string and port 0.
func splitAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}
