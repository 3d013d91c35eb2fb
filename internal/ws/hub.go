package ws

import (
	"sync"

	"github.com/rs/zerolog"

	"medtrack/api/internal/metrics"
)

// Hub maps authenticated user ids to their live push-channel
// connections and fans server-side events out to them. Purely
// in-memory: it starts empty on every process start and clients
// reconnect on their own.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[*Conn]struct{}
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		conns: make(map[string]map[*Conn]struct{}),
		log:   log,
	}
}

func (h *Hub) Register(uid string, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[uid]
	if !ok {
		set = make(map[*Conn]struct{})
		h.conns[uid] = set
	}
	set[conn] = struct{}{}

	metrics.PushConnections.Inc()
	h.log.Debug().Str("uid", uid).Int("connections", len(set)).Msg("push connection registered")
}

// Unregister removes the connection and prunes the user entry as soon
// as its set empties, so the map never holds dangling users.
func (h *Hub) Unregister(uid string, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[uid]
	if !ok {
		return
	}
	if _, ok := set[conn]; !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, uid)
	}

	metrics.PushConnections.Dec()
	h.log.Debug().Str("uid", uid).Int("connections", len(set)).Msg("push connection unregistered")
}

// Notify delivers the event to every live connection of uid. A user
// with no connections is a silent no-op: notification is best-effort
// and never blocks or fails the mutation that triggered it.
func (h *Hub) Notify(uid string, event Event) {
	frame, err := event.encode()
	if err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Msg("encode event")
		return
	}

	h.mu.Lock()
	targets := make([]*Conn, 0, len(h.conns[uid]))
	for conn := range h.conns[uid] {
		targets = append(targets, conn)
	}
	h.mu.Unlock()

	for _, conn := range targets {
		if conn.enqueue(frame) {
			metrics.PushEventsDelivered.WithLabelValues(event.Type).Inc()
		}
	}
}

// Broadcast sends the event to every connection of every user. Used
// for system-wide notices only.
func (h *Hub) Broadcast(event Event) {
	frame, err := event.encode()
	if err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Msg("encode event")
		return
	}

	h.mu.Lock()
	var targets []*Conn
	for _, set := range h.conns {
		for conn := range set {
			targets = append(targets, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range targets {
		if conn.enqueue(frame) {
			metrics.PushEventsDelivered.WithLabelValues(event.Type).Inc()
		}
	}
}

// Count reports the number of live connections for uid.
func (h *Hub) Count(uid string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[uid])
}

// Users reports how many users currently hold at least one connection.
func (h *Hub) Users() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll force-closes every connection. Each close unblocks its
// gateway read loop, which unregisters the connection through the
// normal path.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var targets []*Conn
	for _, set := range h.conns {
		for conn := range set {
			targets = append(targets, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range targets {
		conn.Close()
	}
}
