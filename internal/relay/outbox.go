package relay

import "sync"

// Outbox is the outbound half of one connection: a bounded FIFO of encoded
// frames drained by the connection's writer goroutine.
//
// Frames from one sender to one destination pass through exactly one Outbox
// in arrival order, which is what provides the per-sender ordering
// guarantee.
type Outbox struct {
	connID string
	q      *sendQueue

	// overflowCloseAfter is the number of consecutive Enqueue overflows
	// after which the outbox closes itself. The peer is too slow to keep
	// up; closing is explicit policy rather than silent unbounded dropping.
	overflowCloseAfter int

	mu                   sync.Mutex
	consecutiveOverflows int
	onClose              func()
}

func (o *Outbox) ConnectionID() string { return o.connID }

// Next blocks until a frame is queued or the outbox is closed.
func (o *Outbox) Next() ([]byte, bool) {
	return o.q.Dequeue()
}

func (o *Outbox) DropCount() uint64 { return o.q.DropCount() }

// Closed reports whether the outbox no longer accepts frames.
func (o *Outbox) Closed() bool { return o.q.Closed() }

// Enqueue appends a server-originated frame for the writer goroutine.
// Peer-to-peer traffic goes through the router instead, which enforces
// sender identity; this path is for events the server itself emits to the
// connection that owns this outbox.
func (o *Outbox) Enqueue(frame []byte) bool {
	queued, _ := o.enqueue(frame)
	return queued
}

// Close makes all future enqueues fail; Next keeps returning frames queued
// before the close and reports closed once they are drained. Safe to call
// more than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	onClose := o.onClose
	o.onClose = nil
	o.mu.Unlock()

	o.q.Close()
	if onClose != nil {
		onClose()
	}
}

// enqueue appends a frame, tracking consecutive overflows. It reports
// whether the frame was queued and whether the overflow policy closed the
// outbox as a result.
func (o *Outbox) enqueue(frame []byte) (queued, closedNow bool) {
	if o.q.Enqueue(frame) {
		o.mu.Lock()
		o.consecutiveOverflows = 0
		o.mu.Unlock()
		return true, false
	}
	if o.q.Closed() {
		return false, false
	}

	o.mu.Lock()
	o.consecutiveOverflows++
	trip := o.overflowCloseAfter > 0 && o.consecutiveOverflows >= o.overflowCloseAfter
	o.mu.Unlock()

	if trip {
		o.Close()
		return false, true
	}
	return false, false
}
