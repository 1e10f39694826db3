package chat

import (
	"log/slog"
	"time"

	"github.com/onnwee/lastchat/telemetry"
)

// MessageWriter stores the latest chat message.
type MessageWriter interface {
	Write(author, text string)
}

// Ingester converts inbound chat events into cache writes.
type Ingester struct {
	cache MessageWriter
}

// NewIngester returns an Ingester writing to cache.
func NewIngester(cache MessageWriter) *Ingester {
	return &Ingester{cache: cache}
}

// OnMessage stores the message unless the bot sent it. Text is opaque here;
// empty bodies are stored as-is.
func (i *Ingester) OnMessage(senderID, text string, isSelf bool) {
	if isSelf {
		telemetry.RecordSelfDrop()
		return
	}
	i.cache.Write(senderID, text)
	telemetry.RecordIngest(time.Now())
	slog.Debug("chat message stored", slog.String("author", senderID), slog.Int("len", len(text)), slog.String("component", "chat"))
}

// OnConnect logs an established chat connection. It does not touch the cache.
func (i *Ingester) OnConnect(addr string, port int) {
	slog.Info("chat connected", slog.String("addr", addr), slog.Int("port", port), slog.String("component", "chat"))
}
