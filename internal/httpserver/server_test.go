package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Hari-dev-2004/doceasy-main/internal/config"
	"github.com/Hari-dev-2004/doceasy-main/internal/store"
)

func newTestServer(t *testing.T, cfg config.Config) (*Server, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(cfg, store.NewMemory(), logger, BuildInfo{Commit: "test"})
	ts := httptest.NewServer(s.Mux())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestAPI_CreateJoinListFlow(t *testing.T) {
	_, ts := newTestServer(t, config.Config{})

	resp := postJSON(t, ts.URL+"/api/create-room", `{"room_name":"checkup","user_name":"Dr. Lee"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create-room status=%d, want 201", resp.StatusCode)
	}
	var created roomResponse
	decodeJSON(t, resp, &created)
	if created.Room.ID == "" || created.Room.Name != "checkup" {
		t.Fatalf("room=%+v", created.Room)
	}
	if created.Participant.UserID == "" || created.Room.HostUserID != created.Participant.UserID {
		t.Fatalf("participant=%+v, want creator as host", created.Participant)
	}

	resp = postJSON(t, ts.URL+"/api/join-room", `{"room_id":"`+created.Room.ID+`","user_name":"Pat"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join-room status=%d, want 200", resp.StatusCode)
	}
	var joined roomResponse
	decodeJSON(t, resp, &joined)
	if joined.Participant.DisplayName != "Pat" || joined.Participant.RoomID != created.Room.ID {
		t.Fatalf("participant=%+v", joined.Participant)
	}

	resp, err := http.Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("GET rooms: %v", err)
	}
	defer resp.Body.Close()
	var roomList struct {
		Rooms []store.Room `json:"rooms"`
	}
	decodeJSON(t, resp, &roomList)
	if len(roomList.Rooms) != 1 {
		t.Fatalf("rooms=%v, want 1", roomList.Rooms)
	}

	resp, err = http.Get(ts.URL + "/api/rooms/" + created.Room.ID + "/participants")
	if err != nil {
		t.Fatalf("GET participants: %v", err)
	}
	defer resp.Body.Close()
	var participantList struct {
		Participants []store.Participant `json:"participants"`
	}
	decodeJSON(t, resp, &participantList)
	if len(participantList.Participants) != 2 {
		t.Fatalf("participants=%v, want 2", participantList.Participants)
	}
}

func TestAPI_Validation(t *testing.T) {
	_, ts := newTestServer(t, config.Config{})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"create without names", "/api/create-room", `{}`, http.StatusBadRequest},
		{"create with blank name", "/api/create-room", `{"room_name":"  ","user_name":"x"}`, http.StatusBadRequest},
		{"create with unknown field", "/api/create-room", `{"room_name":"r","user_name":"u","admin":true}`, http.StatusBadRequest},
		{"create with bad json", "/api/create-room", `{`, http.StatusBadRequest},
		{"join without room id", "/api/join-room", `{"user_name":"x"}`, http.StatusBadRequest},
		{"join unknown room", "/api/join-room", `{"room_id":"missing","user_name":"x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status=%d, want %d", resp.StatusCode, tt.status)
			}
			var body struct {
				Error string `json:"error"`
			}
			decodeJSON(t, resp, &body)
			if body.Error == "" {
				t.Fatalf("error body missing")
			}
		})
	}

	resp, err := http.Get(ts.URL + "/api/rooms/missing/participants")
	if err != nil {
		t.Fatalf("GET participants: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("participants of unknown room status=%d, want 404", resp.StatusCode)
	}
}

func TestICEEndpoint(t *testing.T) {
	_, ts := newTestServer(t, config.Config{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}},
	})

	resp, err := http.Get(ts.URL + "/webrtc/ice")
	if err != nil {
		t.Fatalf("GET ice: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want 200", resp.StatusCode)
	}
	var body struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}
	decodeJSON(t, resp, &body)
	if len(body.ICEServers) != 1 || body.ICEServers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("iceServers=%+v", body.ICEServers)
	}
}

func TestOriginPolicy(t *testing.T) {
	_, ts := newTestServer(t, config.Config{
		AllowedOrigins: []string{"https://app.example.com"},
	})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/rooms", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("disallowed origin status=%d, want 403", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/rooms", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("allowed origin status=%d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("Access-Control-Allow-Origin=%q", got)
	}

	// Browsers may append the default port; the portless allow-list entry
	// still matches.
	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/rooms", nil)
	req.Header.Set("Origin", "https://app.example.com:443")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("default-port origin status=%d, want 200", resp.StatusCode)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(config.Config{}, store.NewMemory(), logger, BuildInfo{})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = s.Serve(l) }()
	t.Cleanup(func() { _ = s.Close() })

	base := "http://" + l.Addr().String()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(base + "/readyz")
		if err == nil {
			ok := resp.StatusCode == http.StatusOK
			resp.Body.Close()
			if ok {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became ready")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d, want 200", resp.StatusCode)
	}
}
