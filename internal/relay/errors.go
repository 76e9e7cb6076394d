package relay

import "errors"

var (
	// ErrPeerNotFound is returned for targeted delivery to a connection id
	// that is unknown or already disconnected. Delivery is never retried;
	// signaling is latency-sensitive and a stale message is worse than a
	// dropped one.
	ErrPeerNotFound = errors.New("peer not found")

	// ErrPayloadTooLarge is reported at the boundary before a frame enters
	// the router.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrQueueOverflow means the destination's outbound queue was full and
	// the frame was dropped.
	ErrQueueOverflow = errors.New("outbound queue overflow")

	ErrTransportClosed = errors.New("transport closed")
)
