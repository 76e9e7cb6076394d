package relay

import (
	"sync"
	"sync/atomic"
)

// sendQueue is a frame- and byte-bounded FIFO queue.
//
// It buffers outbound signaling frames so the router never blocks on a
// backpressured peer connection. Enqueue never blocks; Dequeue blocks until
// a frame arrives or the queue is closed.
type sendQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	maxFrames int
	maxBytes  int
	curBytes  int
	frames    [][]byte

	drops atomic.Uint64
}

func newSendQueue(maxFrames, maxBytes int) *sendQueue {
	q := &sendQueue{maxFrames: maxFrames, maxBytes: maxBytes}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

func (q *sendQueue) DropCount() uint64 {
	return q.drops.Load()
}

// Enqueue appends frame if it fits within both the frame and byte budgets.
func (q *sendQueue) Enqueue(frame []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.drops.Add(1)
		return false
	}
	if len(q.frames) >= q.maxFrames || len(frame) > q.maxBytes || q.curBytes+len(frame) > q.maxBytes {
		q.drops.Add(1)
		return false
	}

	q.frames = append(q.frames, frame)
	q.curBytes += len(frame)
	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until a frame is available or the queue is closed and
// drained.
func (q *sendQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	copy(q.frames, q.frames[1:])
	q.frames[len(q.frames)-1] = nil
	q.frames = q.frames[:len(q.frames)-1]
	q.curBytes -= len(frame)
	return frame, true
}

// Close rejects all further enqueues and unblocks waiters. Frames already
// queued stay dequeueable so the writer can flush final events (errors,
// close notices) before the connection goes away.
func (q *sendQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

func (q *sendQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
