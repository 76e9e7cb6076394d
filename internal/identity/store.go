// Package identity tracks the per-connection identity records used for
// signaling: which user a live WebSocket connection belongs to and which
// room it is currently in.
//
// Records live exactly as long as the transport connection; nothing here is
// persisted across restarts.
package identity

import (
	"errors"
	"sync"
)

var (
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrNotFound            = errors.New("identity not found")
)

// Identity is the signaling-side view of one live connection.
//
// ConnectionID is transport-scoped and unique per live connection. UserID is
// stable across reconnects within a session but is never used for routing
// once bound; routing is by connection id only.
type Identity struct {
	ConnectionID string
	UserID       string
	DisplayName  string
	RoomID       string // empty until the connection joins a room
}

// Bound reports whether a user identity has been attached via Bind.
func (id Identity) Bound() bool { return id.UserID != "" }

// Store owns all per-connection identities. All methods are safe for
// concurrent use.
type Store struct {
	mu    sync.Mutex
	conns map[string]*Identity
}

func NewStore() *Store {
	return &Store{
		conns: make(map[string]*Identity),
	}
}

// Register creates an unbound identity for a new transport connection.
func (s *Store) Register(connID string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[connID]; ok {
		return Identity{}, ErrDuplicateConnection
	}
	id := &Identity{ConnectionID: connID}
	s.conns[connID] = id
	return *id, nil
}

// Bind attaches a user identity to a registered connection.
func (s *Store) Bind(connID, userID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	id.UserID = userID
	id.DisplayName = displayName
	return nil
}

// SetRoom records the connection's current room. An empty roomID clears it.
func (s *Store) SetRoom(connID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	id.RoomID = roomID
	return nil
}

// Lookup returns a copy of the identity for connID.
func (s *Store) Lookup(connID string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.conns[connID]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return *id, nil
}

// Unregister removes the identity. Removing an unknown connection is a
// no-op; disconnect paths may race and must stay idempotent.
func (s *Store) Unregister(connID string) {
	s.mu.Lock()
	delete(s.conns, connID)
	s.mu.Unlock()
}

// Len returns the number of live identities.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
