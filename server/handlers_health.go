package server

import (
	"encoding/json"
	"net/http"
)

// Handlers holds dependencies for the ops handlers.
type Handlers struct {
	ready func() bool
}

// NewHandlers creates a new Handlers instance. A nil ready func reports ready.
func NewHandlers(ready func() bool) *Handlers {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Handlers{ready: ready}
}

// HandleHealthz answers liveness checks.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the chat listener has connected.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !h.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":       "not_ready",
			"failed_check": "chat",
			"error":        "chat listener not connected",
		})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
