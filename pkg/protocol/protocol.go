// Package protocol defines the shared contract the commit-protocol state
// machines (Silo, Scar, 2PL, R-Store, Aria) implement, per spec.md §4.4: a
// local search, a commit sequence (lock -> validate -> write -> replicate
// -> release) and an abort path, plus the inbound-message handler table the
// executor dispatches into.
package protocol

import (
	"scar/pkg/message"
	"scar/pkg/table"
	"scar/pkg/txn"
)

// Protocol is implemented by each commit state machine.
type Protocol interface {
	// Search performs a local read against db, used both for local reads
	// issued directly by a transaction and to answer remote SEARCH_REQ
	// messages.
	Search(tableID, partitionID uint32, key []byte) []byte

	// BindReadHandler returns the txn.ReadRequestHandler the executor
	// should install on t before calling t.Execute, per spec.md §4.3 and
	// §9's "handler binding" note. Protocols differ here: Silo/Scar/RStore
	// read without locking (remote reads become a SEARCH_REQ round trip);
	// 2PL locks at read time (remote reads become a LOCK_REQ round trip
	// that returns both tid and value); Aria's epoch batches never cross
	// partitions, so its reads are always local. outbound is the worker's
	// per-peer outbound message slots, reused across retries of t.
	BindReadHandler(t *txn.Transaction, outbound []*message.Message) txn.ReadRequestHandler

	// Commit runs the full commit sequence for t, sending any required
	// peer messages through outbound (indexed by destination coordinator
	// id) and returns whether the transaction committed.
	Commit(t *txn.Transaction, outbound []*message.Message) bool
}

// Handler processes one inbound MessagePiece addressed to this coordinator,
// writing any reply into reply and updating t's read/write set or pending
// response counter as needed.
type Handler func(piece message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction)

// HandlerTable indexes Handler by message.Type, mirroring the
// messageHandlers vector built once per executor in the original engine.
type HandlerTable [message.HandlerCount]Handler
