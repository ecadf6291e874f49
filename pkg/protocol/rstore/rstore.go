// Package rstore implements the phase-partitioned commit protocol of
// spec.md §4.4.4, grounded on
// original_source/protocol/RStore/RStoreExecutor.h: transactions in a given
// phase only ever touch partitions mastered locally by construction of
// pkg/partition's SPartitioner/CPartitioner, so commit needs no per-record
// lock or validation step -- serializability comes from the phase barrier
// itself, coordinated by pkg/phase.
package rstore

import (
	"scar/pkg/message"
	"scar/pkg/partition"
	"scar/pkg/protocol"
	"scar/pkg/table"
	"scar/pkg/txn"
)

// RStore is the commit protocol state machine bound to one coordinator's
// database and to whichever partitioner is active for the current phase
// (SPartitioner for S-phase, CPartitioner for C-phase).
type RStore struct {
	db          *table.Database
	partitioner partition.Partitioner
	coordinator int
}

func New(db *table.Database, partitioner partition.Partitioner, coordinatorID int) *RStore {
	return &RStore{db: db, partitioner: partitioner, coordinator: coordinatorID}
}

// SetPartitioner swaps the active partitioner for the next phase (the
// phase driver calls this with a CPartitioner before C-phase and an
// SPartitioner before S-phase). Callers must only call this while every
// worker is blocked on the phase barrier's STOP status -- the phase
// coordinator's atomic status store is what establishes happens-before
// between this write and the next phase's reads, so no separate lock is
// taken here.
func (r *RStore) SetPartitioner(p partition.Partitioner) {
	r.partitioner = p
}

// Search implements protocol.Protocol's local read.
func (r *RStore) Search(tableID, partitionID uint32, key []byte) []byte {
	return r.db.FindTable(tableID, partitionID).Search(key)
}

// BindReadHandler implements protocol.Protocol. R-Store transactions only
// ever touch partitions mastered locally within the current phase (by
// construction of the active SPartitioner/CPartitioner), so every read is
// local; there is no SEARCH_REQ path to wire.
func (r *RStore) BindReadHandler(t *txn.Transaction, outbound []*message.Message) txn.ReadRequestHandler {
	return func(tableID, partitionID uint32, keyOffset int, key, value []byte, localIndexRead bool) uint64 {
		copy(value, r.Search(tableID, partitionID, key))
		return r.db.FindTable(tableID, partitionID).SearchMetadata(key).Raw()
	}
}

// Commit writes every staged key locally (the active partitioner guarantees
// the local coordinator masters it) and replicates to every other replica
// of the partition, with no lock or validation phase.
func (r *RStore) Commit(t *txn.Transaction, outbound []*message.Message) bool {
	for i := range t.WriteSet {
		wk := &t.WriteSet[i]
		tbl := r.db.FindTable(wk.TableID, wk.PartitionID)
		tbl.Update(wk.Key, wk.Value)

		for k := 0; k < r.partitioner.TotalCoordinators(); k++ {
			if k == r.coordinator || !r.partitioner.IsPartitionReplicatedOn(wk.PartitionID, k) {
				continue
			}
			outbound[k].AddPiece(message.Piece{
				Type:        message.ReplicateRequest,
				TableID:     wk.TableID,
				PartitionID: wk.PartitionID,
				Payload:     protocol.EncodeReplicatePayload(0, wk.Key, wk.Value),
			})
		}
	}
	t.MessageFlusher()
	return true
}

// Abort is a no-op: R-Store never locks a record before commit, so there is
// nothing to release.
func (r *RStore) Abort(t *txn.Transaction, outbound []*message.Message) {}
