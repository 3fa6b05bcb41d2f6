package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/websocket"
)

// BridgeConnector subscribes to rooms through a bridge process that owns the
// broadcast-source protocol and re-emits each room's events as JSON frames
// of the form {"type": ..., "payload": ...} on a WebSocket per room.
type BridgeConnector struct {
	// BaseURL is the bridge WebSocket base, e.g. "ws://localhost:8091".
	BaseURL string
	// Origin is sent as the WebSocket handshake origin. Defaults to a
	// http:// form of BaseURL when empty.
	Origin string
}

type bridgeFrame struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type bridgeConnection struct {
	conn *websocket.Conn
}

func (c *bridgeConnection) Disconnect() error {
	return c.conn.Close()
}

// Connect dials the bridge for one room and pumps its frames into handler
// until the bridge closes the stream. The handler is receiving before
// Connect returns, so no frames are lost after the dial succeeds.
func (c *BridgeConnector) Connect(ctx context.Context, room string, handler Handler) (Connection, error) {
	baseURL := strings.TrimSpace(c.BaseURL)
	if baseURL == "" {
		return nil, errors.New("bridge base url is required")
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return nil, errors.New("room is required")
	}
	if handler == nil {
		return nil, errors.New("event handler is required")
	}

	wsURL := strings.TrimRight(baseURL, "/") + "/rooms/" + url.PathEscape(room)
	origin := strings.TrimSpace(c.Origin)
	if origin == "" {
		origin = "http" + strings.TrimPrefix(wsURL, "ws")
	}

	config, err := websocket.NewConfig(wsURL, origin)
	if err != nil {
		return nil, err
	}
	conn, err := websocket.DialConfig(config)
	if err != nil {
		return nil, err
	}
	go func() {
		decoder := json.NewDecoder(conn)
		for {
			var frame bridgeFrame
			if err := decoder.Decode(&frame); err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					handler(Event{Type: TypeError, Payload: map[string]any{"message": err.Error()}})
				}
				return
			}
			if strings.TrimSpace(frame.Type) == "" {
				continue
			}
			handler(Event{Type: frame.Type, Payload: frame.Payload})
		}
	}()

	return &bridgeConnection{conn: conn}, nil
}
