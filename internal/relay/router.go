package relay

import (
	"io"
	"log/slog"
	"sync"

	"github.com/Hari-dev-2004/doceasy-main/internal/identity"
	"github.com/Hari-dev-2004/doceasy-main/internal/metrics"
	"github.com/Hari-dev-2004/doceasy-main/internal/room"
)

const (
	DefaultSendQueueFrames = 256
	DefaultSendQueueBytes  = 1 << 20 // 1MiB

	// DefaultOverflowCloseAfter closes a connection whose outbound queue
	// overflowed this many times in a row without a successful enqueue in
	// between.
	DefaultOverflowCloseAfter = 8
)

type Config struct {
	SendQueueFrames    int
	SendQueueBytes     int
	OverflowCloseAfter int
}

func (c Config) WithDefaults() Config {
	if c.SendQueueFrames <= 0 {
		c.SendQueueFrames = DefaultSendQueueFrames
	}
	if c.SendQueueBytes <= 0 {
		c.SendQueueBytes = DefaultSendQueueBytes
	}
	if c.OverflowCloseAfter <= 0 {
		c.OverflowCloseAfter = DefaultOverflowCloseAfter
	}
	return c
}

// Router resolves delivery targets and dispatches encoded frames.
//
// It owns one Outbox per attached connection. Sends are enqueue-only and
// never hold any lock across network I/O; actual socket writes happen in
// each connection's writer goroutine.
type Router struct {
	cfg        Config
	log        *slog.Logger
	metrics    *metrics.Metrics
	rooms      *room.Registry
	identities *identity.Store

	mu     sync.Mutex
	peers  map[string]*Outbox
}

func NewRouter(cfg Config, rooms *room.Registry, identities *identity.Store, m *metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		cfg:        cfg.WithDefaults(),
		log:        logger,
		metrics:    m,
		rooms:      rooms,
		identities: identities,
		peers:      make(map[string]*Outbox),
	}
}

// Attach creates and registers the outbox for a newly connected peer.
func (r *Router) Attach(connID string) *Outbox {
	o := &Outbox{
		connID:             connID,
		q:                  newSendQueue(r.cfg.SendQueueFrames, r.cfg.SendQueueBytes),
		overflowCloseAfter: r.cfg.OverflowCloseAfter,
	}
	o.onClose = func() { r.Detach(connID) }

	r.mu.Lock()
	r.peers[connID] = o
	r.mu.Unlock()
	return o
}

// Detach removes the outbox and unblocks its writer. Safe to call for an
// already-detached connection.
func (r *Router) Detach(connID string) {
	r.mu.Lock()
	o, ok := r.peers[connID]
	if ok {
		delete(r.peers, connID)
	}
	r.mu.Unlock()
	if ok {
		o.Close()
	}
}

func (r *Router) lookup(connID string) (*Outbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.peers[connID]
	return o, ok
}

// Send delivers one frame to the named peer connection.
//
// from must be a live, identified connection; it is the caller's
// authenticated connection id, never a client-supplied value.
func (r *Router) Send(from, to string, frame []byte) error {
	sender, err := r.identities.Lookup(from)
	if err != nil {
		return err
	}
	if !sender.Bound() {
		return identity.ErrUnknownConnection
	}

	dest, ok := r.lookup(to)
	if !ok {
		r.metrics.Inc(metrics.DropReasonPeerNotFound)
		return ErrPeerNotFound
	}

	queued, closedNow := dest.enqueue(frame)
	if closedNow {
		r.log.Warn("closing slow peer after repeated queue overflow",
			"conn_id", to,
			"drops", dest.DropCount(),
		)
	}
	if !queued {
		// A queue that was already closed means the peer's transport is
		// going away; that is a disconnect, not backpressure.
		if !closedNow && dest.Closed() {
			r.metrics.Inc(metrics.DropReasonTransportClosed)
			return ErrTransportClosed
		}
		r.metrics.Inc(metrics.DropReasonQueueOverflow)
		return ErrQueueOverflow
	}
	r.metrics.Inc(metrics.SignalsRelayed)
	return nil
}

// Broadcast delivers one frame to every member of the room except exclude.
//
// Delivery is best-effort per member: a full or closed queue for one member
// never aborts delivery to the rest. The member snapshot is taken under the
// room lock; enqueues happen without it. Returns how many members the frame
// was queued for.
func (r *Router) Broadcast(roomID, exclude string, frame []byte) (int, error) {
	members, err := r.rooms.Members(roomID)
	if err != nil {
		return 0, err
	}
	return r.Fanout(members, exclude, frame), nil
}

// Fanout delivers one frame to each listed member connection except
// exclude, with the same best-effort semantics as Broadcast. Callers use it
// when the membership snapshot itself matters, such as announcing a join to
// exactly the members that preceded it.
func (r *Router) Fanout(members []string, exclude string, frame []byte) int {
	delivered := 0
	for _, connID := range members {
		if connID == exclude {
			continue
		}
		// A member with no registered identity is a bookkeeping bug; skip
		// it so one corrupt entry cannot block the room's notifications.
		if _, err := r.identities.Lookup(connID); err != nil {
			r.log.Error("room member has no identity, skipping", "conn_id", connID)
			continue
		}
		dest, ok := r.lookup(connID)
		if !ok {
			continue
		}
		queued, closedNow := dest.enqueue(frame)
		if closedNow {
			r.log.Warn("closing slow peer after repeated queue overflow", "conn_id", connID)
		}
		if !queued {
			if !closedNow && dest.Closed() {
				r.metrics.Inc(metrics.DropReasonTransportClosed)
			} else {
				r.metrics.Inc(metrics.DropReasonQueueOverflow)
			}
			continue
		}
		delivered++
	}
	return delivered
}
