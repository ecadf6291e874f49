package transport

import "scar/pkg/message"

// Loopback wires N coordinators' inbound queues together in a single
// process, so protocol and executor tests can exercise cross-coordinator
// messaging without real sockets. Each coordinator's Send delivers directly
// into the addressed peer's inbound Queue.
type Loopback struct {
	inbound []*Queue
}

// NewLoopback allocates a Loopback for n coordinators, each with an inbound
// queue of the given buffer depth.
func NewLoopback(n, depth int) *Loopback {
	l := &Loopback{inbound: make([]*Queue, n)}
	for i := range l.inbound {
		l.inbound[i] = NewQueue(depth)
	}
	return l
}

// Send delivers m to its Header.DestNode's inbound queue.
func (l *Loopback) Send(m *message.Message) {
	l.inbound[m.Header.DestNode].Push(m)
}

// Inbound returns the queue a coordinator should drain in its
// process_request loop.
func (l *Loopback) Inbound(coordinatorID int) *Queue {
	return l.inbound[coordinatorID]
}
