// Package upstream defines the contract between the relay core and the
// process that speaks the live broadcast protocol.
//
// The relay never talks to the broadcast source directly. It asks a
// Connector for a room subscription and receives the room's named events
// through a Handler bound at connect time, so no events can slip between
// connection establishment and listener registration.
package upstream

import "context"

// Well-known event types emitted by a room subscription. The set is open;
// the relay forwards unrecognized types unchanged.
const (
	TypeConnected    = "connected"
	TypeChat         = "chat"
	TypeGift         = "gift"
	TypeLike         = "like"
	TypeMember       = "member"
	TypeError        = "error"
	TypeDisconnected = "disconnected"
)

// Event is one named event from a live broadcast. Payload is opaque to the
// relay; only chat dedup key extraction inspects individual fields.
type Event struct {
	Type    string
	Payload map[string]any
}

// Handler receives the events of a single room subscription in arrival
// order.
type Handler func(Event)

// Connection is an established room subscription.
type Connection interface {
	Disconnect() error
}

// Connector establishes room subscriptions against the broadcast source.
// Connect is network I/O and may take unbounded time; callers are expected
// to coalesce concurrent attempts for the same room.
type Connector interface {
	Connect(ctx context.Context, room string, handler Handler) (Connection, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, room string, handler Handler) (Connection, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context, room string, handler Handler) (Connection, error) {
	return f(ctx, room, handler)
}
