// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChatMessagesIngested    prometheus.Counter
	ChatMessagesSelfDropped prometheus.Counter
	ChatConnects            prometheus.Counter
	ChatReconnectAttempts   prometheus.Counter
	StatusRequests          prometheus.Counter
	StatusFreshResponses    prometheus.Counter

	// Histograms (seconds)
	StatusRequestDuration prometheus.Observer

	// Gauges
	ChatConnectedGauge   prometheus.Gauge // 1=connected,0=disconnected
	LastMessageTimestamp prometheus.Gauge // unix seconds of the latest stored message
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChatMessagesIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "lastchat_messages_ingested_total", Help: "Chat messages written to the cache"})
		ChatMessagesSelfDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "lastchat_messages_self_dropped_total", Help: "Chat messages dropped because the bot sent them"})
		ChatConnects = promauto.NewCounter(prometheus.CounterOpts{Name: "lastchat_chat_connects_total", Help: "Successful IRC connections"})
		ChatReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "lastchat_chat_reconnect_attempts_total", Help: "IRC reconnect attempts after a dropped or failed connection"})
		StatusRequests = promauto.NewCounter(prometheus.CounterOpts{Name: "lastchat_status_requests_total", Help: "Status endpoint requests served"})
		StatusFreshResponses = promauto.NewCounter(prometheus.CounterOpts{Name: "lastchat_status_fresh_responses_total", Help: "Status responses that carried the new-message tag"})
		StatusRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "lastchat_status_request_duration_seconds", Help: "Status request handling seconds", Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1}})
		ChatConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "lastchat_chat_connected", Help: "IRC connection up=1 down=0"})
		LastMessageTimestamp = promauto.NewGauge(prometheus.GaugeOpts{Name: "lastchat_last_message_timestamp_seconds", Help: "Unix time of the most recently stored chat message"})
	})
}

// RecordIngest counts a stored message and stamps its arrival.
func RecordIngest(at time.Time) {
	if ChatMessagesIngested != nil {
		ChatMessagesIngested.Inc()
	}
	if LastMessageTimestamp != nil {
		LastMessageTimestamp.Set(float64(at.Unix()))
	}
}

// RecordSelfDrop counts a message filtered out as the bot's own.
func RecordSelfDrop() {
	if ChatMessagesSelfDropped != nil {
		ChatMessagesSelfDropped.Inc()
	}
}

// SetChatConnected sets gauge to 1 if connected else 0, counting each connect.
func SetChatConnected(up bool) {
	if ChatConnectedGauge == nil {
		return
	}
	if up {
		ChatConnectedGauge.Set(1)
		if ChatConnects != nil {
			ChatConnects.Inc()
		}
		return
	}
	ChatConnectedGauge.Set(0)
}

// IncReconnectAttempts counts one reconnect attempt.
func IncReconnectAttempts() {
	if ChatReconnectAttempts != nil {
		ChatReconnectAttempts.Inc()
	}
}

// RecordStatusRequest counts a served status request.
func RecordStatusRequest(fresh bool) {
	if StatusRequests != nil {
		StatusRequests.Inc()
	}
	if fresh && StatusFreshResponses != nil {
		StatusFreshResponses.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
