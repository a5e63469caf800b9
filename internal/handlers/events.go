package handlers

import (
	"fmt"
	"net/http"
	"time"

	"media-library/internal/logging"
)

// heartbeatInterval keeps idle SSE connections from being reaped by
// proxies.
const heartbeatInterval = 15 * time.Second

// StreamEvents serves the event bus as a server-sent event stream. Every
// bus topic is forwarded with its topic as the SSE event name; the
// connection lasts until the client goes away.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, err := h.bus.SubscribeAll(r.Context())
	if err != nil {
		logging.Error("failed to subscribe to event bus: %v", err)
		writeJSONError(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case env, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Topic, env.Payload); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
