// Package store is the persistence boundary for room-management metadata:
// room and participant records keyed by generated ids.
//
// The signaling core treats this store as authoritative for metadata only;
// live membership and routing are owned by the in-process registry.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrRoomNotFound = errors.New("room not found")

type Room struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	HostUserID string    `json:"host_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type Participant struct {
	UserID      string    `json:"id"`
	DisplayName string    `json:"name"`
	RoomID      string    `json:"room_id"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Store is the narrow read/write interface the signaling core consumes.
type Store interface {
	// CreateRoom persists a new room with a generated id and the creator as
	// its first participant (and host).
	CreateRoom(ctx context.Context, name, userName string) (Room, Participant, error)

	// JoinRoom adds a new participant to an existing room.
	JoinRoom(ctx context.Context, roomID, userName string) (Room, Participant, error)

	GetRoom(ctx context.Context, roomID string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	ListParticipants(ctx context.Context, roomID string) ([]Participant, error)

	// DeleteRoom removes the room and its participants. Deleting an unknown
	// room is a no-op; the registry sweeper may race a manual cleanup.
	DeleteRoom(ctx context.Context, roomID string) error

	Close()
}
