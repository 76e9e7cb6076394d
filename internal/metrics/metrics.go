package metrics

import "sync"

// Event counter names. The relay increments these on the hot path; drop
// reasons mirror the error taxonomy surfaced to clients.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"
	RoomsJoined       = "rooms_joined"
	RoomsLeft         = "rooms_left"
	RoomsSwept        = "rooms_swept"
	SignalsRelayed    = "signals_relayed"
	PresenceEvents    = "presence_events"

	DropReasonPeerNotFound    = "peer_not_found"
	DropReasonPayloadTooLarge = "payload_too_large"
	DropReasonQueueOverflow   = "queue_overflow"
	DropReasonRateLimited     = "rate_limited"
	DropReasonTransportClosed = "transport_closed"
	DropReasonTooManyConns    = "too_many_connections"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// It exists to keep routing and enforcement logic testable without a real
// metrics backend; counters are exported via the Prometheus text handler.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
