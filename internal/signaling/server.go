package signaling

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hari-dev-2004/doceasy-main/internal/config"
	"github.com/Hari-dev-2004/doceasy-main/internal/identity"
	"github.com/Hari-dev-2004/doceasy-main/internal/metrics"
	"github.com/Hari-dev-2004/doceasy-main/internal/origin"
	"github.com/Hari-dev-2004/doceasy-main/internal/ratelimit"
	"github.com/Hari-dev-2004/doceasy-main/internal/relay"
	"github.com/Hari-dev-2004/doceasy-main/internal/room"
	"github.com/Hari-dev-2004/doceasy-main/internal/store"
)

const wsWriteWait = 1 * time.Second

// ErrTooManyConnections is returned when the configured connection cap is
// reached; the request is rejected before the WebSocket upgrade.
var ErrTooManyConnections = errors.New("too many connections")

// Server terminates signaling WebSocket connections.
//
// Each connection walks a fixed lifecycle: it must identify itself with a
// hello before anything else, may then join one room at a time, and relays
// offer/answer/candidate payloads to peers in that room by connection id.
// All outbound traffic for a connection flows through its relay outbox and
// is written by a single writer goroutine.
type Server struct {
	cfg        config.Config
	log        *slog.Logger
	metrics    *metrics.Metrics
	store      store.Store
	rooms      *room.Registry
	identities *identity.Store
	router     *relay.Router
	clock      ratelimit.Clock
	upgrader   websocket.Upgrader

	mu   sync.Mutex
	live int
}

func NewServer(
	cfg config.Config,
	st store.Store,
	rooms *room.Registry,
	identities *identity.Store,
	router *relay.Router,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		cfg:        cfg,
		log:        logger,
		metrics:    m,
		store:      st,
		rooms:      rooms,
		identities: identities,
		router:     router,
		clock:      ratelimit.RealClock{},
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		header := r.Header.Get("Origin")
		if header == "" {
			// Non-browser clients send no Origin header.
			return true
		}
		return origin.Allowed(header, allowed)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := s.acquireSlot(); err != nil {
		s.metrics.Inc(metrics.DropReasonTooManyConns)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.releaseSlot()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	connID, err := newConnectionID()
	if err != nil {
		writeClose(ws, websocket.CloseInternalServerErr, "id generation failed")
		return
	}
	if _, err := s.identities.Register(connID); err != nil {
		writeClose(ws, websocket.CloseInternalServerErr, "registration failed")
		return
	}
	s.metrics.Inc(metrics.ConnectionsOpened)
	log := s.log.With("conn_id", connID)
	log.Debug("connection opened", "remote_addr", r.RemoteAddr)

	outbox := s.router.Attach(connID)
	writerDone := make(chan struct{})
	defer s.teardown(connID, writerDone, log)

	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(writerDone)
		s.writePump(ws, outbox)
	}()
	go s.pingLoop(ws, done)

	s.readPump(r.Context(), ws, connID, outbox, log)
}

func (s *Server) acquireSlot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxConnections > 0 && s.live >= s.cfg.MaxConnections {
		return ErrTooManyConnections
	}
	s.live++
	return nil
}

func (s *Server) releaseSlot() {
	s.mu.Lock()
	s.live--
	s.mu.Unlock()
}

// teardown runs exactly once per connection, after the read pump returns.
// Every step tolerates having already happened; disconnects race evictions
// and sweeps.
func (s *Server) teardown(connID string, writerDone <-chan struct{}, log *slog.Logger) {
	self, lookupErr := s.identities.Lookup(connID)
	s.router.Detach(connID)

	// Detach closed the outbox; give the writer a moment to flush queued
	// frames (final error events included) before the socket is torn down.
	select {
	case <-writerDone:
	case <-time.After(wsWriteWait):
	}

	if lookupErr == nil {
		if roomID, ok := s.rooms.RoomOf(connID); ok {
			s.leaveRoom(connID, roomID, self.UserID)
		}
	}
	s.identities.Unregister(connID)
	s.metrics.Inc(metrics.ConnectionsClosed)
	log.Debug("connection closed")
}

// writePump drains the outbox onto the socket. It is the only goroutine
// that writes data frames for this connection.
func (s *Server) writePump(ws *websocket.Conn, outbox *relay.Outbox) {
	for {
		frame, ok := outbox.Next()
		if !ok {
			writeClose(ws, websocket.CloseNormalClosure, "")
			ws.Close()
			return
		}
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			// A mid-send transport failure is just a disconnect; the read
			// pump observes the closed socket and runs the normal teardown.
			s.metrics.Inc(metrics.DropReasonTransportClosed)
			outbox.Close()
			ws.Close()
			return
		}
	}
}

func (s *Server) pingLoop(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.WSPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(ctx context.Context, ws *websocket.Conn, connID string, outbox *relay.Outbox, log *slog.Logger) {
	ws.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.HelloTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
	})

	limiter := ratelimit.NewTokenBucket(s.clock, int64(s.cfg.MaxMessagesPerSecond), int64(s.cfg.MaxMessagesPerSecond))

	identified := false
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(ws, websocket.CloseUnsupportedData, "expected text message")
			return
		}
		if !limiter.Allow(1) {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			// Close via the outbox so the error event is flushed before the
			// close frame.
			outbox.Enqueue(errorEvent(errCodeRateLimited, "message rate limit exceeded").encode())
			outbox.Close()
			return
		}

		msg, err := parseEnvelope(data)
		if err != nil {
			if !identified {
				writeClose(ws, websocket.ClosePolicyViolation, "invalid handshake")
				return
			}
			outbox.Enqueue(errorEvent(errCodeBadMessage, err.Error()).encode())
			continue
		}

		if !identified {
			if msg.Type != messageTypeHello {
				outbox.Enqueue(errorEvent(errCodeNotIdentified, "hello required before other messages").encode())
				outbox.Close()
				return
			}
			if err := s.identities.Bind(connID, msg.UserID, msg.DisplayName); err != nil {
				return
			}
			identified = true
			outbox.Enqueue(welcomeEvent(connID).encode())
			_ = ws.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
			log.Debug("connection identified", "user_id", msg.UserID)
			continue
		}

		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))

		switch {
		case msg.Type == messageTypeHello:
			outbox.Enqueue(errorEvent(errCodeBadMessage, "already identified").encode())
		case msg.Type == messageTypeJoin:
			s.handleJoin(ctx, connID, msg.RoomID, outbox, log)
		case msg.Type == messageTypeLeave:
			s.handleLeave(connID, msg.RoomID, outbox, log)
		case isSignalType(msg.Type):
			s.handleSignal(connID, msg, outbox)
		}
	}
}

func (s *Server) handleJoin(ctx context.Context, connID, roomID string, outbox *relay.Outbox, log *slog.Logger) {
	self, err := s.identities.Lookup(connID)
	if err != nil {
		return
	}
	if self.RoomID == roomID {
		return
	}

	// A room created over the HTTP API becomes live here, on its first
	// WebSocket join.
	if _, err := s.rooms.Get(roomID); err != nil {
		meta, err := s.store.GetRoom(ctx, roomID)
		if err != nil {
			if !errors.Is(err, store.ErrRoomNotFound) {
				log.Error("room lookup failed", "room_id", roomID, "err", err)
			}
			outbox.Enqueue(errorEvent(errCodeRoomNotFound, fmt.Sprintf("room %q not found", roomID)).encode())
			return
		}
		s.rooms.Create(room.Room{
			ID:         meta.ID,
			Name:       meta.Name,
			HostUserID: meta.HostUserID,
			CreatedAt:  meta.CreatedAt,
		})
	}

	// Joining a different room is an implicit leave of the current one.
	if self.RoomID != "" {
		s.leaveRoom(connID, self.RoomID, self.UserID)
	}

	if s.cfg.DedupeParticipantsByUser {
		s.evictDuplicateUser(roomID, connID, self.UserID, log)
	}

	prior, err := s.rooms.Join(roomID, connID)
	if err != nil {
		// Swept between the lookup above and now.
		outbox.Enqueue(errorEvent(errCodeRoomNotFound, fmt.Sprintf("room %q not found", roomID)).encode())
		return
	}
	_ = s.identities.SetRoom(connID, roomID)
	s.metrics.Inc(metrics.RoomsJoined)

	// Tell the joiner about everyone present before the join landed, then
	// announce the joiner to exactly that set. A member joining concurrently
	// announces itself to us; re-enumerating the room here could announce it
	// a second time.
	for _, member := range prior {
		id, err := s.identities.Lookup(member)
		if err != nil {
			continue
		}
		outbox.Enqueue(userJoinedEvent(id.ConnectionID, id.UserID, id.DisplayName).encode())
	}
	s.router.Fanout(prior, connID, userJoinedEvent(connID, self.UserID, self.DisplayName).encode())
	s.metrics.Inc(metrics.PresenceEvents)
	log.Info("joined room", "room_id", roomID, "user_id", self.UserID)
}

func (s *Server) handleLeave(connID, roomID string, outbox *relay.Outbox, log *slog.Logger) {
	self, err := s.identities.Lookup(connID)
	if err != nil {
		return
	}
	// Leaving a room the connection is not in is a no-op.
	if s.leaveRoom(connID, roomID, self.UserID) {
		log.Info("left room", "room_id", roomID, "user_id", self.UserID)
	}
}

// leaveRoom removes the connection from the room and announces the
// departure to the remaining members. It reports whether the connection was
// actually a member; callers rely on this to emit at most one user-left per
// real departure.
func (s *Server) leaveRoom(connID, roomID, userID string) bool {
	if !s.rooms.Leave(roomID, connID) {
		return false
	}
	_ = s.identities.SetRoom(connID, "")
	s.metrics.Inc(metrics.RoomsLeft)
	_, _ = s.router.Broadcast(roomID, connID, userLeftEvent(connID, userID).encode())
	s.metrics.Inc(metrics.PresenceEvents)
	return true
}

// evictDuplicateUser removes any other live connection of the same user
// from the room before the new one joins, then detaches it. Its transport
// teardown finds the room membership already gone and stays quiet, so the
// room sees exactly one user-left for the old connection.
func (s *Server) evictDuplicateUser(roomID, connID, userID string, log *slog.Logger) {
	members, err := s.rooms.Members(roomID)
	if err != nil {
		return
	}
	for _, member := range members {
		if member == connID {
			continue
		}
		id, err := s.identities.Lookup(member)
		if err != nil || id.UserID != userID {
			continue
		}
		s.leaveRoom(member, roomID, userID)
		s.router.Detach(member)
		log.Info("evicted duplicate connection",
			"room_id", roomID,
			"user_id", userID,
			"evicted_conn_id", member,
		)
	}
}

func (s *Server) handleSignal(connID string, msg envelope, outbox *relay.Outbox) {
	err := s.relaySignal(connID, msg)
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrPayloadTooLarge):
		outbox.Enqueue(errorEvent(errCodePayloadTooLarge,
			fmt.Sprintf("payload exceeds %d bytes", s.cfg.MaxSignalPayloadBytes)).encode())
	case errors.Is(err, relay.ErrPeerNotFound):
		outbox.Enqueue(errorEvent(errCodePeerNotFound, fmt.Sprintf("no peer %q in your room", msg.Target)).encode())
	default:
		// Queue overflow or a closing transport on the target side is the
		// target's problem; the router already counted the drop.
	}
}

func (s *Server) relaySignal(connID string, msg envelope) error {
	if len(msg.Payload) > s.cfg.MaxSignalPayloadBytes {
		s.metrics.Inc(metrics.DropReasonPayloadTooLarge)
		return relay.ErrPayloadTooLarge
	}

	self, err := s.identities.Lookup(connID)
	if err != nil {
		return err
	}

	// Targets resolve only within the sender's current room.
	target, err := s.identities.Lookup(msg.Target)
	if err != nil || self.RoomID == "" || target.RoomID != self.RoomID {
		s.metrics.Inc(metrics.DropReasonPeerNotFound)
		return relay.ErrPeerNotFound
	}

	return s.router.Send(connID, msg.Target, relayedFrame(msg.Type, connID, self.UserID, msg.Payload))
}

func newConnectionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
