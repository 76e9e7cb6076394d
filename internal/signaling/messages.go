package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type messageType string

// Client-to-server message types.
const (
	messageTypeHello        messageType = "hello"
	messageTypeJoin         messageType = "join"
	messageTypeLeave        messageType = "leave"
	messageTypeOffer        messageType = "offer"
	messageTypeAnswer       messageType = "answer"
	messageTypeICECandidate messageType = "ice-candidate"
	messageTypeSignal       messageType = "signal"
)

// Server-to-client message types. Clients must never send these.
const (
	messageTypeWelcome    messageType = "welcome"
	messageTypeUserJoined messageType = "user-joined"
	messageTypeUserLeft   messageType = "user-left"
	messageTypeError      messageType = "error"
)

// Error codes carried by error events.
const (
	errCodeBadMessage      = "bad_message"
	errCodeNotIdentified   = "not_identified"
	errCodeRoomNotFound    = "room_not_found"
	errCodePeerNotFound    = "peer_not_found"
	errCodePayloadTooLarge = "payload_too_large"
	errCodeRateLimited     = "rate_limited"
)

// envelope is the single wire frame for all signaling traffic, both
// directions. Which fields are allowed depends on the type; parse rejects
// anything outside the per-type shape.
//
// Payload is opaque to the server. Offers, answers and candidates are
// relayed byte for byte; the server never inspects SDP.
type envelope struct {
	Type messageType `json:"type"`

	RoomID string `json:"room_id,omitempty"`

	// Target is the destination connection id on client-to-server signal
	// frames; From is the sender connection id stamped by the server on
	// relayed frames. Clients learn connection ids from welcome and
	// user-joined events.
	Target string `json:"target,omitempty"`
	From   string `json:"from,omitempty"`

	UserID       string `json:"user_id,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func parseEnvelope(data []byte) (envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg envelope
	if err := dec.Decode(&msg); err != nil {
		return envelope{}, err
	}
	if err := msg.validate(); err != nil {
		return envelope{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return envelope{}, fmt.Errorf("unexpected trailing data")
	}
	return msg, nil
}

func (m envelope) validate() error {
	switch m.Type {
	case messageTypeHello:
		if m.UserID == "" {
			return fmt.Errorf("hello message missing user_id")
		}
		if m.RoomID != "" || m.Target != "" || m.From != "" || m.ConnectionID != "" ||
			m.Payload != nil || m.Code != "" || m.Message != "" {
			return fmt.Errorf("hello message has unexpected fields")
		}
	case messageTypeJoin, messageTypeLeave:
		if m.RoomID == "" {
			return fmt.Errorf("%s message missing room_id", m.Type)
		}
		if m.Target != "" || m.From != "" || m.UserID != "" || m.DisplayName != "" ||
			m.ConnectionID != "" || m.Payload != nil || m.Code != "" || m.Message != "" {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case messageTypeOffer, messageTypeAnswer, messageTypeICECandidate, messageTypeSignal:
		if m.Target == "" {
			return fmt.Errorf("%s message missing target", m.Type)
		}
		if len(m.Payload) == 0 {
			return fmt.Errorf("%s message missing payload", m.Type)
		}
		if m.RoomID != "" || m.From != "" || m.UserID != "" || m.DisplayName != "" ||
			m.ConnectionID != "" || m.Code != "" || m.Message != "" {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

// isSignalType reports whether t is one of the relayed peer-to-peer types.
func isSignalType(t messageType) bool {
	switch t {
	case messageTypeOffer, messageTypeAnswer, messageTypeICECandidate, messageTypeSignal:
		return true
	}
	return false
}

func welcomeEvent(connID string) envelope {
	return envelope{Type: messageTypeWelcome, ConnectionID: connID}
}

func userJoinedEvent(connID, userID, displayName string) envelope {
	return envelope{
		Type:         messageTypeUserJoined,
		ConnectionID: connID,
		UserID:       userID,
		DisplayName:  displayName,
	}
}

func userLeftEvent(connID, userID string) envelope {
	return envelope{
		Type:         messageTypeUserLeft,
		ConnectionID: connID,
		UserID:       userID,
	}
}

func errorEvent(code, message string) envelope {
	return envelope{Type: messageTypeError, Code: code, Message: message}
}

// relayedFrame builds the server-stamped copy of a signal frame: target is
// stripped, from and the sender identity are attached. The payload bytes are
// spliced in exactly as received; marshaling them again would compact
// whitespace and escape HTML characters, and the peer must get them bit for
// bit.
func relayedFrame(t messageType, fromConnID, fromUserID string, payload json.RawMessage) []byte {
	head := envelope{Type: t, From: fromConnID, UserID: fromUserID}.encode()
	frame := make([]byte, 0, len(head)+len(payload)+len(`,"payload":`)+1)
	frame = append(frame, head[:len(head)-1]...)
	frame = append(frame, `,"payload":`...)
	frame = append(frame, payload...)
	frame = append(frame, '}')
	return frame
}

func (m envelope) encode() []byte {
	b, err := json.Marshal(m)
	if err != nil {
		// All envelope fields are marshalable; this cannot fail at runtime.
		panic(err)
	}
	return b
}
