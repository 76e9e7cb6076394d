// Package room owns the live room registry: which rooms exist in this
// process and which connections are members of each.
//
// Persisted room metadata is owned by the external store; this registry is
// authoritative only for live membership and routing.
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Hari-dev-2004/doceasy-main/internal/metrics"
	"github.com/Hari-dev-2004/doceasy-main/internal/ratelimit"
)

var ErrRoomNotFound = errors.New("room not found")

const (
	DefaultGracePeriod   = 30 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

// Room is the metadata for a live room. HostUserID is informational only;
// no signaling operation is gated on it.
type Room struct {
	ID         string
	Name       string
	HostUserID string
	CreatedAt  time.Time
}

type roomState struct {
	mu      sync.Mutex
	meta    Room
	members map[string]struct{}

	// emptyAt is the time the member set last became empty; zero while the
	// room is occupied. Empty rooms are removed only once they have been
	// empty for the configured grace period, so a brief reconnect window
	// (and a final notification referencing room metadata) still works.
	emptyAt time.Time
}

type Config struct {
	// GracePeriod is how long an empty room survives before the sweeper
	// removes it. <= 0 uses DefaultGracePeriod.
	GracePeriod time.Duration

	// SweepInterval is the background sweep cadence. <= 0 uses
	// DefaultSweepInterval.
	SweepInterval time.Duration

	Clock ratelimit.Clock

	// OnRemove is invoked (outside all registry locks) for every room the
	// sweeper removes.
	OnRemove func(roomID string)
}

// Registry tracks live rooms and their member connections.
//
// The registry mutex guards the room and membership indexes; each room has
// its own mutex guarding its member set, so unrelated rooms' traffic is not
// serialized. Neither lock is ever held across network I/O.
type Registry struct {
	cfg     Config
	clock   ratelimit.Clock
	metrics *metrics.Metrics

	mu         sync.Mutex
	rooms      map[string]*roomState
	connToRoom map[string]string
}

func NewRegistry(cfg Config, m *metrics.Metrics) *Registry {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	return &Registry{
		cfg:        cfg,
		clock:      clock,
		metrics:    m,
		rooms:      make(map[string]*roomState),
		connToRoom: make(map[string]string),
	}
}

// Create registers a live room from its metadata with no members yet. It is
// a no-op if the room is already live, so racing joins converge on one live
// room. The grace-period timer starts immediately; a created room nobody
// joins gets swept.
func (r *Registry) Create(meta Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[meta.ID]; ok {
		return
	}
	r.rooms[meta.ID] = &roomState{
		meta:    meta,
		members: make(map[string]struct{}),
		emptyAt: r.clock.Now(),
	}
}

// Join adds connID to the room's member set. It returns the members present
// before this join, snapshotted under the room lock; callers announce the
// joiner to exactly that set so two concurrent joiners each get announced to
// the other exactly once.
func (r *Registry) Join(roomID, connID string) ([]string, error) {
	r.mu.Lock()
	state, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	r.connToRoom[connID] = roomID

	state.mu.Lock()
	r.mu.Unlock()
	prior := make([]string, 0, len(state.members))
	for member := range state.members {
		prior = append(prior, member)
	}
	state.members[connID] = struct{}{}
	state.emptyAt = time.Time{}
	state.mu.Unlock()
	return prior, nil
}

// Leave removes connID from the room. It reports whether the connection was
// actually a member, so callers can emit exactly one user-left per real
// departure; leaving twice is a no-op.
func (r *Registry) Leave(roomID, connID string) bool {
	r.mu.Lock()
	state, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if r.connToRoom[connID] == roomID {
		delete(r.connToRoom, connID)
	}

	state.mu.Lock()
	r.mu.Unlock()
	defer state.mu.Unlock()

	if _, member := state.members[connID]; !member {
		return false
	}
	delete(state.members, connID)
	if len(state.members) == 0 {
		state.emptyAt = r.clock.Now()
	}
	return true
}

// Members returns a snapshot of the room's member connection ids. The
// snapshot is taken under the room lock; callers deliver to it without any
// registry lock held.
func (r *Registry) Members(roomID string) ([]string, error) {
	r.mu.Lock()
	state, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	state.mu.Lock()
	r.mu.Unlock()
	defer state.mu.Unlock()

	out := make([]string, 0, len(state.members))
	for connID := range state.members {
		out = append(out, connID)
	}
	return out, nil
}

// Get returns the room metadata.
func (r *Registry) Get(roomID string) (Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return state.meta, nil
}

// RoomOf returns the room connID is currently a member of, if any. Used on
// disconnect so the caller does not have to track its own membership.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.connToRoom[connID]
	return roomID, ok
}

// Run sweeps empty rooms until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(r.clock.Now())
		}
	}
}

// sweepOnce removes rooms that have been empty for at least the grace
// period and returns how many were removed.
func (r *Registry) sweepOnce(now time.Time) int {
	var removed []string

	r.mu.Lock()
	for roomID, state := range r.rooms {
		state.mu.Lock()
		expired := len(state.members) == 0 && !state.emptyAt.IsZero() && now.Sub(state.emptyAt) >= r.cfg.GracePeriod
		state.mu.Unlock()
		if expired {
			delete(r.rooms, roomID)
			removed = append(removed, roomID)
		}
	}
	r.mu.Unlock()

	for _, roomID := range removed {
		r.metrics.Inc(metrics.RoomsSwept)
		if r.cfg.OnRemove != nil {
			r.cfg.OnRemove(roomID)
		}
	}
	return len(removed)
}
