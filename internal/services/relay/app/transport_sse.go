package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// sseHeartbeatInterval paces comment lines that keep intermediaries from
// timing out an otherwise quiet stream.
const sseHeartbeatInterval = 15 * time.Second

// handleSSESubscribe serves the per-room SSE subscription. The envelope
// type is carried as the stream's named-event field and the envelope JSON
// as its data line; the envelope itself still includes the room.
func handleSSESubscribe(w http.ResponseWriter, r *http.Request, registry *roomRegistry, h *hub) {
	room, ok := roomFromRequest(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := newSubscriber(room, transportSSE, parseEventFilter(r.URL.Query().Get("events")))
	joinRoom(registry, h, sub)
	defer leaveRoom(registry, h, sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case env, ok := <-sub.ch:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				log.Printf("relay: marshal envelope for room %q: %v", room, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
