package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hari-dev-2004/doceasy-main/internal/config"
	"github.com/Hari-dev-2004/doceasy-main/internal/identity"
	"github.com/Hari-dev-2004/doceasy-main/internal/metrics"
	"github.com/Hari-dev-2004/doceasy-main/internal/relay"
	"github.com/Hari-dev-2004/doceasy-main/internal/room"
	"github.com/Hari-dev-2004/doceasy-main/internal/signaling"
	"github.com/Hari-dev-2004/doceasy-main/internal/store"
)

// TestWebSocketUpgradeThroughMiddleware wires the server the same way the
// binary does and upgrades a connection through the middleware chain. The
// logger middleware wraps every ResponseWriter, so its wrapper has to keep
// the connection hijackable or every upgrade fails with a 500.
func TestWebSocketUpgradeThroughMiddleware(t *testing.T) {
	cfg := config.Config{
		MaxSignalPayloadBytes: 64 * 1024,
		MaxMessageBytes:       68 * 1024,
		MaxMessagesPerSecond:  1000,
		HelloTimeout:          2 * time.Second,
		WSIdleTimeout:         5 * time.Second,
		WSPingInterval:        1 * time.Second,
		SendQueueFrames:       64,
		SendQueueBytes:        1 << 20,
		OverflowCloseAfter:    4,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := store.NewMemory()
	m := metrics.New()
	ids := identity.NewStore()
	rooms := room.NewRegistry(room.Config{}, m)
	router := relay.NewRouter(relay.Config{
		SendQueueFrames:    cfg.SendQueueFrames,
		SendQueueBytes:     cfg.SendQueueBytes,
		OverflowCloseAfter: cfg.OverflowCloseAfter,
	}, rooms, ids, m, logger)

	s := New(cfg, st, logger, BuildInfo{})
	s.Mux().Handle("GET /ws", signaling.NewServer(cfg, st, rooms, ids, router, m, logger))

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

	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+l.Addr().String()+"/ws", nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial through middleware chain: %v (status %d)", err, status)
	}
	defer ws.Close()

	_ = ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","user_id":"u1"}`)); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	var welcome struct {
		Type         string `json:"type"`
		ConnectionID string `json:"connection_id"`
	}
	if err := json.Unmarshal(data, &welcome); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if welcome.Type != "welcome" || welcome.ConnectionID == "" {
		t.Fatalf("welcome=%+v", welcome)
	}
}
