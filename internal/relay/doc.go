// Package relay contains the signaling message router: it resolves a
// delivery target (one named peer, or every member of a room except the
// sender) and hands encoded frames to the destination's bounded outbound
// queue.
//
// The router never inspects payloads and never blocks on a slow peer; a
// full queue drops the frame and, after repeated overflows, closes the
// destination connection.
package relay
