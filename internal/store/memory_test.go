package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemory_CreateRoomMakesCreatorHostAndParticipant(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	room, p, err := s.CreateRoom(ctx, "consultation", "Dr. Lee")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.ID == "" || p.UserID == "" {
		t.Fatalf("expected generated ids, got room=%+v participant=%+v", room, p)
	}
	if room.HostUserID != p.UserID {
		t.Fatalf("HostUserID=%q, want creator %q", room.HostUserID, p.UserID)
	}
	if p.RoomID != room.ID {
		t.Fatalf("participant RoomID=%q, want %q", p.RoomID, room.ID)
	}

	got, err := s.GetRoom(ctx, room.ID)
	if err != nil || got.Name != "consultation" {
		t.Fatalf("GetRoom=%+v,%v", got, err)
	}

	participants, err := s.ListParticipants(ctx, room.ID)
	if err != nil || len(participants) != 1 {
		t.Fatalf("ListParticipants=%v,%v, want 1 participant", participants, err)
	}
}

func TestMemory_JoinRoom(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	room, _, err := s.CreateRoom(ctx, "r", "host")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	joined, p, err := s.JoinRoom(ctx, room.ID, "guest")
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if joined.ID != room.ID || p.DisplayName != "guest" {
		t.Fatalf("JoinRoom=%+v,%+v", joined, p)
	}

	participants, _ := s.ListParticipants(ctx, room.ID)
	if len(participants) != 2 {
		t.Fatalf("len(participants)=%d, want 2", len(participants))
	}
}

func TestMemory_JoinUnknownRoom(t *testing.T) {
	s := NewMemory()
	if _, _, err := s.JoinRoom(context.Background(), "missing", "guest"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("JoinRoom err=%v, want ErrRoomNotFound", err)
	}
}

func TestMemory_DeleteRoomIsIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	room, _, err := s.CreateRoom(ctx, "r", "host")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := s.DeleteRoom(ctx, room.ID); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if err := s.DeleteRoom(ctx, room.ID); err != nil {
		t.Fatalf("second DeleteRoom: %v", err)
	}
	if _, err := s.GetRoom(ctx, room.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("GetRoom after delete err=%v, want ErrRoomNotFound", err)
	}
	if _, err := s.ListParticipants(ctx, room.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("ListParticipants after delete err=%v, want ErrRoomNotFound", err)
	}
}

func TestMemory_ListRooms(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, _, err := s.CreateRoom(ctx, name, "host"); err != nil {
			t.Fatalf("CreateRoom(%s): %v", name, err)
		}
	}
	rooms, err := s.ListRooms(ctx)
	if err != nil || len(rooms) != 3 {
		t.Fatalf("ListRooms=%v,%v, want 3 rooms", rooms, err)
	}
}
