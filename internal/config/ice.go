package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "ICE_SERVERS_JSON"
	envStunURLs       = "STUN_URLS"
	envTurnURLs       = "TURN_URLS"
	envTurnUsername   = "TURN_USERNAME"
	envTurnCredential = "TURN_CREDENTIAL"
)

// DefaultSTUNURL is handed to clients when no ICE configuration is provided.
const DefaultSTUNURL = "stun:stun.l.google.com:19302"

type iceServerJSON struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// parseICEServersFromValues resolves the ICE server list that the HTTP API
// hands to browsers before they open their peer connections.
//
// ICE_SERVERS_JSON, when set, is authoritative and must be a JSON array of
// {urls, username?, credential?} objects. Otherwise the list is assembled
// from STUN_URLS and TURN_URLS (with TURN_USERNAME/TURN_CREDENTIAL applied
// to the TURN entries), falling back to a public STUN server when nothing
// is configured.
func parseICEServersFromValues(serversJSON, stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	if strings.TrimSpace(serversJSON) != "" {
		var raw []iceServerJSON
		dec := json.NewDecoder(strings.NewReader(serversJSON))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", envICEServersJSON, err)
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("invalid %s: empty server list", envICEServersJSON)
		}
		servers := make([]webrtc.ICEServer, 0, len(raw))
		for i, entry := range raw {
			if len(entry.URLs) == 0 {
				return nil, fmt.Errorf("invalid %s: server %d has no urls", envICEServersJSON, i)
			}
			for _, u := range entry.URLs {
				if err := validateICEURL(u); err != nil {
					return nil, fmt.Errorf("invalid %s: server %d: %w", envICEServersJSON, i, err)
				}
			}
			server := webrtc.ICEServer{URLs: entry.URLs}
			if entry.Username != "" {
				server.Username = entry.Username
			}
			if entry.Credential != "" {
				server.Credential = entry.Credential
			}
			servers = append(servers, server)
		}
		return servers, nil
	}

	var servers []webrtc.ICEServer

	stun := splitCommaList(stunURLs)
	for _, u := range stun {
		if err := validateICEURL(u); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", envStunURLs, err)
		}
	}
	if len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}

	turn := splitCommaList(turnURLs)
	for _, u := range turn {
		if err := validateICEURL(u); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", envTurnURLs, err)
		}
	}
	if len(turn) > 0 {
		if turnUsername == "" || turnCredential == "" {
			return nil, fmt.Errorf("%s requires both %s and %s", envTurnURLs, envTurnUsername, envTurnCredential)
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   turnUsername,
			Credential: turnCredential,
		})
	} else if turnUsername != "" || turnCredential != "" {
		return nil, fmt.Errorf("%s/%s set without %s", envTurnUsername, envTurnCredential, envTurnURLs)
	}

	if len(servers) == 0 {
		servers = append(servers, webrtc.ICEServer{URLs: []string{DefaultSTUNURL}})
	}
	return servers, nil
}

func validateICEURL(u string) error {
	switch {
	case strings.HasPrefix(u, "stun:"), strings.HasPrefix(u, "stuns:"),
		strings.HasPrefix(u, "turn:"), strings.HasPrefix(u, "turns:"):
	default:
		return fmt.Errorf("ice url %q must use a stun:, stuns:, turn: or turns: scheme", u)
	}
	if len(u) <= strings.Index(u, ":")+1 {
		return fmt.Errorf("ice url %q has no host", u)
	}
	return nil
}
