package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"scar/pkg/message"
)

// TCP is a real socket transport for cmd/scar-node: one persistent
// connection per peer coordinator, each carrying a stream of
// length-prefixed message.Encode frames. Grounded in the teacher's
// net/rpc-over-TCP dialing pattern (pkg/client.MasterClient.tryConnect),
// but pushes framed messages directly rather than making RPC calls, since
// this engine's peer traffic is asynchronous piece batches, not
// request/reply pairs.
type TCP struct {
	coordinatorID int
	inbound       *Queue

	mu    sync.Mutex
	conns map[int]net.Conn
	addrs map[int]string
}

// NewTCP starts listening on listenAddr for inbound peer connections and
// returns a TCP transport for coordinatorID. addrs maps every other
// coordinator id to its dial address.
func NewTCP(coordinatorID int, listenAddr string, addrs map[int]string, inboundDepth int) (*TCP, error) {
	t := &TCP{
		coordinatorID: coordinatorID,
		inbound:       NewQueue(inboundDepth),
		conns:         make(map[int]net.Conn),
		addrs:         addrs,
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", listenAddr, err)
	}
	go t.acceptLoop(ln)
	return t, nil
}

func (t *TCP) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go t.readLoop(conn)
	}
}

func (t *TCP) readLoop(conn net.Conn) {
	defer conn.Close()
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		m, err := message.Decode(buf)
		if err != nil {
			continue
		}
		t.inbound.Push(m)
	}
}

func (t *TCP) dial(dest int) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[dest]; ok {
		return c, nil
	}
	addr, ok := t.addrs[dest]
	if !ok {
		return nil, fmt.Errorf("transport: no address configured for coordinator %d", dest)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial coordinator %d at %s: %w", dest, addr, err)
	}
	t.conns[dest] = conn
	return conn, nil
}

// Send encodes m and writes it, length-prefixed, to its destination's
// connection, dialing lazily on first use and dropping the cached
// connection on write failure so the next Send redials.
func (t *TCP) Send(m *message.Message) error {
	conn, err := t.dial(m.Header.DestNode)
	if err != nil {
		return err
	}

	buf := message.Encode(m)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))

	if _, err := conn.Write(lenBuf[:]); err != nil {
		t.dropConn(m.Header.DestNode)
		return err
	}
	if _, err := conn.Write(buf); err != nil {
		t.dropConn(m.Header.DestNode)
		return err
	}
	return nil
}

func (t *TCP) dropConn(dest int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[dest]; ok {
		c.Close()
		delete(t.conns, dest)
	}
}

// Inbound returns the queue this coordinator's executor should drain.
func (t *TCP) Inbound() *Queue { return t.inbound }
