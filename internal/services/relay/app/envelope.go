package server

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var errRoomRequired = errors.New("room is required")

// Envelope is the normalized, transport-agnostic form of one upstream
// event. It is built once per event and never mutated afterwards.
type Envelope struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp int64          `json:"timestamp"`
	Room      string         `json:"room"`
}

func newEnvelope(room string, eventType string, payload map[string]any) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	return Envelope{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		Room:      room,
	}
}

const wildcardEventType = "*"

// eventFilter is the set of envelope types a subscriber accepts, stored
// lowercased. The wildcard entry accepts every type.
type eventFilter map[string]struct{}

// parseEventFilter parses a comma-separated events selector. Names are
// trimmed and matched case-insensitively; an empty selector accepts chat
// events only.
func parseEventFilter(selector string) eventFilter {
	filter := make(eventFilter)
	for _, part := range strings.Split(selector, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		filter[name] = struct{}{}
	}
	if len(filter) == 0 {
		filter["chat"] = struct{}{}
	}
	return filter
}

func (f eventFilter) accepts(eventType string) bool {
	if _, ok := f[wildcardEventType]; ok {
		return true
	}
	_, ok := f[strings.ToLower(eventType)]
	return ok
}

// ConnectError reports a failed upstream connect attempt. Every caller
// coalesced onto the attempt receives the same value.
type ConnectError struct {
	Room string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect upstream for room %q: %v", e.Room, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DisconnectError reports an upstream disconnect failure. The room's active
// record is already removed by the time it is returned.
type DisconnectError struct {
	Room string
	Err  error
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("disconnect upstream for room %q: %v", e.Room, e.Err)
}

func (e *DisconnectError) Unwrap() error { return e.Err }

// errorPayload shapes an error for the wire: named taxonomy errors carry
// {name, message}, everything else degrades to {message}.
func errorPayload(err error) map[string]any {
	var connectErr *ConnectError
	var disconnectErr *DisconnectError
	switch {
	case err == nil:
		return map[string]any{"message": ""}
	case errors.As(err, &connectErr):
		return map[string]any{"name": "UpstreamConnectError", "message": connectErr.Error()}
	case errors.As(err, &disconnectErr):
		return map[string]any{"name": "UpstreamDisconnectError", "message": disconnectErr.Error()}
	default:
		return map[string]any{"message": err.Error()}
	}
}
