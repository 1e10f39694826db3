package server

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/lastchat/telemetry"
)

// StatusReader renders the latest chat message and reports whether it carries
// the fresh tag.
type StatusReader interface {
	Render() (body string, fresh bool)
}

// Responder answers every request with the cached message as plain text.
type Responder struct {
	cache StatusReader
}

// NewResponder returns a Responder reading from cache.
func NewResponder(cache StatusReader) *Responder {
	return &Responder{cache: cache}
}

// ServeHTTP ignores method, path, headers and body. An empty cache still
// yields 200 with a lone newline.
func (h *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var fresh bool
	telemetry.TimeFunc(telemetry.StatusRequestDuration, func() {
		var body string
		body, fresh = h.cache.Render()
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(body + "\n")); err != nil {
			telemetry.LoggerWithCorr(r.Context()).Debug("status write failed", slog.Any("err", err), slog.String("component", "http"))
		}
	})
	telemetry.RecordStatusRequest(fresh)
}
