package server

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/zuliantoe/TTSLiveChatRelay/internal/services/relay/upstream"
)

// roomRegistry owns the upstream connection state per room. It enforces the
// core invariants: at most one active upstream connection and at most one
// in-flight connect attempt per room, never both at once.
type roomRegistry struct {
	ctx       context.Context
	connector upstream.Connector
	hub       *hub
	dedup     *dedupCache

	mu      sync.Mutex
	active  map[string]upstream.Connection
	pending map[string]*connectAttempt
}

// connectAttempt is the shared outcome of one upstream connect. Waiters
// block on done and read err afterwards; the close of done publishes err.
type connectAttempt struct {
	done chan struct{}
	err  error
}

func newRoomRegistry(ctx context.Context, connector upstream.Connector, hub *hub) *roomRegistry {
	return &roomRegistry{
		ctx:       ctx,
		connector: connector,
		hub:       hub,
		dedup:     newDedupCache(),
		active:    make(map[string]upstream.Connection),
		pending:   make(map[string]*connectAttempt),
	}
}

// Connect ensures a live upstream subscription for the room. It returns
// immediately for rooms that are already connected. Concurrent callers for
// a room that is still connecting coalesce onto the in-flight attempt and
// all observe its single outcome, so the upstream connect runs exactly once
// per attempt.
func (r *roomRegistry) Connect(room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return errRoomRequired
	}

	r.mu.Lock()
	if _, ok := r.active[room]; ok {
		r.mu.Unlock()
		return nil
	}
	if attempt, ok := r.pending[room]; ok {
		r.mu.Unlock()
		<-attempt.done
		return attempt.err
	}
	attempt := &connectAttempt{done: make(chan struct{})}
	r.pending[room] = attempt
	r.mu.Unlock()

	// The handler is bound as part of the connect call itself, so events
	// emitted during establishment are not lost.
	conn, err := r.connector.Connect(r.ctx, room, func(event upstream.Event) {
		r.dispatch(room, event)
	})

	r.mu.Lock()
	delete(r.pending, room)
	if err == nil {
		r.active[room] = conn
	}
	r.mu.Unlock()

	if err != nil {
		attempt.err = &ConnectError{Room: room, Err: err}
	}
	close(attempt.done)
	return attempt.err
}

// Disconnect tears down the room's upstream subscription. It is a no-op for
// rooms with no active connection. The active record is dropped even when
// the upstream disconnect call fails, so a failing upstream can never leave
// a stale connected room behind.
func (r *roomRegistry) Disconnect(room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return errRoomRequired
	}

	r.mu.Lock()
	conn, ok := r.active[room]
	delete(r.active, room)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	err := conn.Disconnect()
	r.dedup.drop(room)
	r.hub.broadcast(newEnvelope(room, upstream.TypeDisconnected, nil))
	if err != nil {
		log.Printf("relay: upstream disconnect failed for room %q: %v", room, err)
		return &DisconnectError{Room: room, Err: err}
	}
	return nil
}

// Status returns the sorted names of currently-connected rooms.
func (r *roomRegistry) Status() []string {
	r.mu.Lock()
	rooms := make([]string, 0, len(r.active))
	for room := range r.active {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()
	sort.Strings(rooms)
	return rooms
}

// Close disconnects every remaining room.
func (r *roomRegistry) Close() {
	for _, room := range r.Status() {
		if err := r.Disconnect(room); err != nil {
			log.Printf("relay: disconnect on close: %v", err)
		}
	}
}

// dispatch normalizes one upstream event and fans it out. Chat events whose
// fingerprint falls inside the dedup window are dropped before an envelope
// is built. Events for rooms that are neither connected nor connecting are
// late arrivals after a disconnect and are discarded.
func (r *roomRegistry) dispatch(room string, event upstream.Event) {
	r.mu.Lock()
	_, isActive := r.active[room]
	_, isPending := r.pending[room]
	r.mu.Unlock()
	if !isActive && !isPending {
		return
	}

	if event.Type == upstream.TypeChat {
		if key := chatDedupKey(event.Payload); key != "" && !r.dedup.shouldEmit(room, key) {
			return
		}
	}
	r.hub.broadcast(newEnvelope(room, event.Type, event.Payload))
}

// joinRoom registers the subscriber for delivery and ensures the upstream
// connection. The subscriber receives events as soon as the connection is
// up; a connect failure reaches it as a single error envelope sent directly
// to it, regardless of its filter.
func joinRoom(registry *roomRegistry, h *hub, sub *subscriber) {
	h.join(sub)
	go func() {
		if err := registry.Connect(sub.room); err != nil {
			sub.send(newEnvelope(sub.room, upstream.TypeError, errorPayload(err)))
			return
		}
		// The last subscriber may have left while the connect was still in
		// flight; its leave saw no active connection to tear down. Re-check
		// so the room does not stay connected with nobody listening. Rooms
		// connected through the control surface have no subscribers and are
		// not joined here, so they are unaffected.
		if !h.occupied(sub.room) {
			if err := registry.Disconnect(sub.room); err != nil {
				log.Printf("relay: disconnect after connect outlived subscribers for room %q: %v", sub.room, err)
			}
		}
	}()
}

// leaveRoom removes the subscriber and tears down the upstream connection
// when its room has no subscribers left on either transport.
func leaveRoom(registry *roomRegistry, h *hub, sub *subscriber) {
	if h.leave(sub) {
		if err := registry.Disconnect(sub.room); err != nil {
			log.Printf("relay: disconnect after last leave for room %q: %v", sub.room, err)
		}
	}
}
