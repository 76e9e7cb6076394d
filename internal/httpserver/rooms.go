package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Hari-dev-2004/doceasy-main/internal/store"
)

// Room-management REST API. These endpoints write metadata only; a room
// becomes live in the signaling registry when its first participant joins
// over the WebSocket.

const maxAPIBodyBytes = 16 * 1024

type createRoomRequest struct {
	RoomName string `json:"room_name"`
	UserName string `json:"user_name"`
}

type joinRoomRequest struct {
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
}

type roomResponse struct {
	Room        store.Room        `json:"room"`
	Participant store.Participant `json:"participant"`
}

func (s *Server) registerRoomRoutes() {
	s.mux.HandleFunc("POST /api/create-room", s.withOriginPolicy(s.handleCreateRoom))
	s.mux.HandleFunc("POST /api/join-room", s.withOriginPolicy(s.handleJoinRoom))
	s.mux.HandleFunc("GET /api/rooms", s.withOriginPolicy(s.handleListRooms))
	s.mux.HandleFunc("GET /api/rooms/{id}/participants", s.withOriginPolicy(s.handleListParticipants))
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RoomName = strings.TrimSpace(req.RoomName)
	req.UserName = strings.TrimSpace(req.UserName)
	if req.RoomName == "" || req.UserName == "" {
		writeError(w, http.StatusBadRequest, "room_name and user_name are required")
		return
	}

	room, participant, err := s.store.CreateRoom(r.Context(), req.RoomName, req.UserName)
	if err != nil {
		s.log.Error("create room failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	WriteJSON(w, http.StatusCreated, roomResponse{Room: room, Participant: participant})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RoomID = strings.TrimSpace(req.RoomID)
	req.UserName = strings.TrimSpace(req.UserName)
	if req.RoomID == "" || req.UserName == "" {
		writeError(w, http.StatusBadRequest, "room_id and user_name are required")
		return
	}

	room, participant, err := s.store.JoinRoom(r.Context(), req.RoomID, req.UserName)
	if errors.Is(err, store.ErrRoomNotFound) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		s.log.Error("join room failed", "room_id", req.RoomID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to join room")
		return
	}
	WriteJSON(w, http.StatusOK, roomResponse{Room: room, Participant: participant})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.store.ListRooms(r.Context())
	if err != nil {
		s.log.Error("list rooms failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	if rooms == nil {
		rooms = []store.Room{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	participants, err := s.store.ListParticipants(r.Context(), roomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		s.log.Error("list participants failed", "room_id", roomID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}
	if participants == nil {
		participants = []store.Participant{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"participants": participants})
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAPIBodyBytes))
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{"error": msg})
}
