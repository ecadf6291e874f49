// Package message implements the framed multi-piece wire format described
// in spec.md §3 and §6: a Message carries a header plus zero or more
// MessagePieces bound for one destination coordinator, and is filled by a
// worker before being handed off to the outbound transport.
package message

import (
	"encoding/binary"
	"fmt"
)

// Type tags the payload carried by a MessagePiece, matching the baseline
// message types enumerated in spec.md §6.
type Type uint16

const (
	SearchRequest Type = iota
	SearchResponse
	LockRequest
	LockResponse
	ReadValidationRequest
	ReadValidationResponse
	AbortRequest
	WriteRequest
	ReplicateRequest
	ReleaseLockRequest
	OperationReplicationRequest
	typeCount
)

func (t Type) String() string {
	names := [...]string{
		"SearchRequest", "SearchResponse", "LockRequest", "LockResponse",
		"ReadValidationRequest", "ReadValidationResponse", "AbortRequest",
		"WriteRequest", "ReplicateRequest", "ReleaseLockRequest",
		"OperationReplicationRequest",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// HandlerCount is the size messageHandlers tables should be allocated with.
const HandlerCount = int(typeCount)

// Piece is one framed unit within a Message: {type, table_id, partition_id,
// length, payload}, per spec.md §6.
type Piece struct {
	Type        Type
	TableID     uint32
	PartitionID uint32
	Payload     []byte
}

func (p Piece) Len() int {
	return len(p.Payload)
}

// Header is the fixed framing prefix of a Message, per spec.md §6.
type Header struct {
	SourceNode int
	DestNode   int
	WorkerID   int
}

// Message is a framed buffer of pieces bound for a single destination
// coordinator. Messages are singly-owned: a worker fills one per peer and
// releases it to the outbound queue when flushed (spec.md §9).
type Message struct {
	Header Header
	pieces []Piece
}

// New allocates an empty message addressed from source to dest, originating
// at the given worker -- the executor's init_message step.
func New(source, dest, worker int) *Message {
	return &Message{Header: Header{SourceNode: source, DestNode: dest, WorkerID: worker}}
}

// AddPiece appends a piece to the message and returns its index.
func (m *Message) AddPiece(p Piece) int {
	m.pieces = append(m.pieces, p)
	return len(m.pieces) - 1
}

// Pieces returns the message's pieces in arrival order.
func (m *Message) Pieces() []Piece {
	return m.pieces
}

// Count returns the number of pieces currently buffered.
func (m *Message) Count() int {
	return len(m.pieces)
}

// Encode serializes the message to the wire format described in spec.md §6:
// a header of {source_node, dest_node, worker_id, piece_count, total_length}
// followed by each piece's {type, table_id, partition_id, length, payload}.
// This exists so an actual socket transport (pkg/transport.TCP) is a
// drop-in replacement for the in-process loopback transport.
func Encode(m *Message) []byte {
	total := 0
	for _, p := range m.pieces {
		total += 2 + 4 + 4 + 4 + len(p.Payload)
	}
	buf := make([]byte, 4+4+4+4+4+total)
	off := 0
	putUint32 := func(v int) {
		binary.BigEndian.PutUint32(buf[off:], uint32(v))
		off += 4
	}
	putUint32(m.Header.SourceNode)
	putUint32(m.Header.DestNode)
	putUint32(m.Header.WorkerID)
	putUint32(len(m.pieces))
	putUint32(total)
	for _, p := range m.pieces {
		binary.BigEndian.PutUint16(buf[off:], uint16(p.Type))
		off += 2
		putUint32(int(p.TableID))
		putUint32(int(p.PartitionID))
		putUint32(len(p.Payload))
		off += copy(buf[off:], p.Payload)
	}
	return buf
}

// Decode parses a byte slice produced by Encode back into a Message.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < 20 {
		return nil, fmt.Errorf("message: buffer too short for header: %d bytes", len(buf))
	}
	off := 0
	getUint32 := func() int {
		v := binary.BigEndian.Uint32(buf[off:])
		off += 4
		return int(v)
	}
	m := &Message{}
	m.Header.SourceNode = getUint32()
	m.Header.DestNode = getUint32()
	m.Header.WorkerID = getUint32()
	pieceCount := getUint32()
	_ = getUint32() // total length, informational only

	m.pieces = make([]Piece, 0, pieceCount)
	for i := 0; i < pieceCount; i++ {
		if off+14 > len(buf) {
			return nil, fmt.Errorf("message: truncated piece header at index %d", i)
		}
		var p Piece
		p.Type = Type(binary.BigEndian.Uint16(buf[off:]))
		off += 2
		p.TableID = uint32(getUint32())
		p.PartitionID = uint32(getUint32())
		length := getUint32()
		if off+length > len(buf) {
			return nil, fmt.Errorf("message: truncated payload at index %d", i)
		}
		p.Payload = append([]byte(nil), buf[off:off+length]...)
		off += length
		m.pieces = append(m.pieces, p)
	}
	return m, nil
}
