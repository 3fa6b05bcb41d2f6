package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/net/websocket"
)

// newWSSubscribeHandler serves the per-room WebSocket subscription. Joining
// happens on open, leaving on close from either side; envelopes are written
// as JSON frames.
func newWSSubscribeHandler(registry *roomRegistry, h *hub) http.HandlerFunc {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, registry, h)
	})
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := roomFromRequest(w, r); !ok {
			return
		}
		wsHandler.ServeHTTP(w, r)
	}
}

func handleWSConn(conn *websocket.Conn, registry *roomRegistry, h *hub) {
	defer func() {
		_ = conn.Close()
	}()

	request := conn.Request()
	room := strings.TrimSpace(request.PathValue("room"))
	if room == "" {
		return
	}
	filter := parseEventFilter(request.URL.Query().Get("events"))
	sub := newSubscriber(room, transportWebSocket, filter)

	joinRoom(registry, h, sub)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		encoder := json.NewEncoder(conn)
		for env := range sub.ch {
			if err := encoder.Encode(env); err != nil {
				return
			}
		}
	}()

	// Drain client frames until the connection closes; inbound payloads
	// carry no meaning on this push-only surface.
	for {
		var discard []byte
		if err := websocket.Message.Receive(conn, &discard); err != nil {
			break
		}
	}

	leaveRoom(registry, h, sub)
	<-writerDone
}
