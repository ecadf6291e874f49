// Package transport gives the message-passing abstraction spec.md §9 names
// only as an external collaborator ("lock-free queues") a concrete Go
// shape: a channel-backed MPSC Queue, an in-process Loopback wiring N
// coordinators together for tests, and a TCP transport for the CLI binary,
// grounded in the teacher's net/rpc-over-TCP pattern (pkg/client,
// pkg/master) but reworked from RPC call/reply into async framed message
// push, since protocol pieces are fire-and-forget rather than request/response
// calls.
package transport

import "scar/pkg/message"

// Queue is a single-producer-many-producer, single-consumer channel of
// framed messages, standing in for original_source's LockfreeQueue<Message*>.
type Queue struct {
	ch chan *message.Message
}

// NewQueue allocates a Queue with the given buffer depth.
func NewQueue(depth int) *Queue {
	return &Queue{ch: make(chan *message.Message, depth)}
}

// Push enqueues m, blocking if the queue is full -- callers on the hot path
// should size depth generously, since blocking here stalls a worker.
func (q *Queue) Push(m *message.Message) {
	q.ch <- m
}

// Pop returns the next message, or (nil, false) if none is immediately
// available -- mirroring the original's non-blocking in_queue.pop() used in
// the process_request drain loop.
func (q *Queue) Pop() (*message.Message, bool) {
	select {
	case m := <-q.ch:
		return m, true
	default:
		return nil, false
	}
}

// Len reports how many messages are currently buffered.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Chan exposes the underlying channel for callers that want to block on
// receipt (e.g. coordinator's inbound router) rather than busy-poll Pop.
func (q *Queue) Chan() <-chan *message.Message {
	return q.ch
}
