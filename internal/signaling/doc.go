// Package signaling implements the WebSocket transport for the relay:
// connection lifecycle, the hello handshake, room presence events and
// peer-to-peer signal forwarding.
//
// The wire protocol is a single JSON envelope in both directions; see
// messages.go for the per-type shapes.
package signaling
