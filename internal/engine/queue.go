package engine

import (
	"sync"

	"github.com/roach88/flowguard/internal/protocol"
)

// request is one submitted call waiting for the Run loop.
type request struct {
	call  protocol.Call
	reply chan reply
}

type reply struct {
	receipt protocol.Receipt
	err     error
}

// callQueue is a thread-safe FIFO of submitted calls.
//
// Unbounded so Submit never blocks on a busy engine. A signal channel
// (buffered, size 1) lets the Run loop wait with a context.
type callQueue struct {
	mu       sync.Mutex
	requests []request
	closed   bool
	signal   chan struct{}
}

func newCallQueue() *callQueue {
	return &callQueue{
		requests: make([]request, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds r to the back of the queue.
// Returns false if the queue is closed.
func (q *callQueue) Enqueue(r request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.requests = append(q.requests, r)

	// Buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front request without blocking.
func (q *callQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return request{}, false
	}

	r := q.requests[0]
	// Release the slot so the args map can be collected.
	q.requests[0] = request{}

	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}

	return r, true
}

// Wait returns a channel that signals when requests may be available.
// The channel is closed when the queue is closed.
func (q *callQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *callQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Closed reports whether Close has been called.
func (q *callQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting requests and wakes the waiter.
func (q *callQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
