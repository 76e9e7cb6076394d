package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used in dev mode and tests. It mirrors the
// Postgres implementation's semantics exactly.
type Memory struct {
	mu           sync.Mutex
	rooms        map[string]Room
	participants map[string][]Participant
}

func NewMemory() *Memory {
	return &Memory{
		rooms:        make(map[string]Room),
		participants: make(map[string][]Participant),
	}
}

func (s *Memory) CreateRoom(ctx context.Context, name, userName string) (Room, Participant, error) {
	now := time.Now().UTC()
	p := Participant{
		UserID:      uuid.NewString(),
		DisplayName: userName,
		JoinedAt:    now,
	}
	room := Room{
		ID:         uuid.NewString(),
		Name:       name,
		HostUserID: p.UserID,
		CreatedAt:  now,
	}
	p.RoomID = room.ID

	s.mu.Lock()
	s.rooms[room.ID] = room
	s.participants[room.ID] = append(s.participants[room.ID], p)
	s.mu.Unlock()
	return room, p, nil
}

func (s *Memory) JoinRoom(ctx context.Context, roomID, userName string) (Room, Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return Room{}, Participant{}, ErrRoomNotFound
	}
	p := Participant{
		UserID:      uuid.NewString(),
		DisplayName: userName,
		RoomID:      roomID,
		JoinedAt:    time.Now().UTC(),
	}
	s.participants[roomID] = append(s.participants[roomID], p)
	return room, p, nil
}

func (s *Memory) GetRoom(ctx context.Context, roomID string) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return room, nil
}

func (s *Memory) ListRooms(ctx context.Context) ([]Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	return out, nil
}

func (s *Memory) ListParticipants(ctx context.Context, roomID string) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}
	return append([]Participant(nil), s.participants[roomID]...), nil
}

func (s *Memory) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	delete(s.rooms, roomID)
	delete(s.participants, roomID)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Close() {}
