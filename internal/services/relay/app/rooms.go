package server

import "sync"

type transportKind int

const (
	transportWebSocket transportKind = iota
	transportSSE
)

// subscriberBufferSize bounds how far a slow consumer can fall behind
// before envelopes are dropped for it.
const subscriberBufferSize = 64

// subscriber is the bookkeeping entry for one downstream connection. The
// transport owns the physical connection; the hub owns this entry and its
// delivery channel.
type subscriber struct {
	room   string
	kind   transportKind
	filter eventFilter

	mu     sync.Mutex
	closed bool
	ch     chan Envelope
}

func newSubscriber(room string, kind transportKind, filter eventFilter) *subscriber {
	return &subscriber{
		room:   room,
		kind:   kind,
		filter: filter,
		ch:     make(chan Envelope, subscriberBufferSize),
	}
}

// send hands the envelope to the subscriber without blocking, bypassing the
// filter. Envelopes for a full or closed channel are dropped for this
// subscriber only.
func (s *subscriber) send(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- env:
	default:
	}
}

// deliver applies the subscriber's type filter before sending.
func (s *subscriber) deliver(env Envelope) {
	if s.filter.accepts(env.Type) {
		s.send(env)
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
}

// hub tracks the per-room subscriber sets for both transports behind one
// lock, so the empty-room check after a leave observes both registries
// atomically.
type hub struct {
	mu   sync.RWMutex
	subs map[transportKind]map[string]map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{
		subs: map[transportKind]map[string]map[*subscriber]struct{}{
			transportWebSocket: {},
			transportSSE:       {},
		},
	}
}

// join registers the subscriber for delivery.
func (h *hub) join(sub *subscriber) {
	h.mu.Lock()
	rooms := h.subs[sub.kind]
	set, ok := rooms[sub.room]
	if !ok {
		set = make(map[*subscriber]struct{})
		rooms[sub.room] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
}

// leave removes the subscriber and reports whether its room now has no
// subscribers on either transport. A second leave for the same subscriber
// is a no-op, so cleanup runs exactly once regardless of which side closed
// the connection.
func (h *hub) leave(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[sub.kind][sub.room]
	if _, ok := set[sub]; !ok {
		return false
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs[sub.kind], sub.room)
	}
	sub.close()

	for _, rooms := range h.subs {
		if len(rooms[sub.room]) > 0 {
			return false
		}
	}
	return true
}

// occupied reports whether the room has at least one subscriber on either
// transport.
func (h *hub) occupied(room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, rooms := range h.subs {
		if len(rooms[room]) > 0 {
			return true
		}
	}
	return false
}

// broadcast delivers the envelope to every filter-matching subscriber of
// its room across both transports. A failing or full subscriber never
// affects the others.
func (h *hub) broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, rooms := range h.subs {
		for sub := range rooms[env.Room] {
			sub.deliver(env)
		}
	}
}
