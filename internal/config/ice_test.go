package config

import (
	"strings"
	"testing"
)

func TestParseICEServers_JSONAuthoritative(t *testing.T) {
	serversJSON := `[
		{"urls": ["stun:stun.example.com:3478"]},
		{"urls": ["turn:turn.example.com:3478"], "username": "u", "credential": "c"}
	]`
	servers, err := parseICEServersFromValues(serversJSON, "stun:ignored.example.com", "", "", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len(servers)=%d, want 2", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Errorf("servers[0]=%+v", servers[0])
	}
	if servers[1].Username != "u" || servers[1].Credential != "c" {
		t.Errorf("servers[1]=%+v, want turn credentials applied", servers[1])
	}
}

func TestParseICEServers_ConvenienceVars(t *testing.T) {
	servers, err := parseICEServersFromValues("",
		"stun:a.example.com:3478,stun:b.example.com:3478",
		"turn:t.example.com:3478", "user", "pass")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len(servers)=%d, want 2", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Errorf("stun urls=%v, want 2 entries", servers[0].URLs)
	}
	if servers[1].Username != "user" {
		t.Errorf("turn server=%+v", servers[1])
	}
}

func TestParseICEServers_DefaultFallback(t *testing.T) {
	servers, err := parseICEServersFromValues("", "", "", "", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != DefaultSTUNURL {
		t.Fatalf("servers=%+v, want single default STUN entry", servers)
	}
}

func TestParseICEServers_Errors(t *testing.T) {
	tests := []struct {
		name                                                 string
		serversJSON, stun, turn, turnUsername, turnCredential string
		wantSub                                              string
	}{
		{name: "malformed json", serversJSON: `{"urls": "x"}`, wantSub: "invalid ICE_SERVERS_JSON"},
		{name: "empty json list", serversJSON: `[]`, wantSub: "empty server list"},
		{name: "json entry without urls", serversJSON: `[{"username": "u"}]`, wantSub: "has no urls"},
		{name: "bad scheme", stun: "http://stun.example.com", wantSub: "scheme"},
		{name: "turn without credentials", turn: "turn:t.example.com", wantSub: "requires both"},
		{name: "credentials without turn", turnUsername: "u", turnCredential: "c", wantSub: "without TURN_URLS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseICEServersFromValues(tt.serversJSON, tt.stun, tt.turn, tt.turnUsername, tt.turnCredential)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("err=%q, want substring %q", err, tt.wantSub)
			}
		})
	}
}
