// Package twopl implements the two-phase locking protocol of spec.md
// §4.4.3: locks are acquired at read and write time during execution
// (there is no separate lock-write-set step at commit), and commit itself
// is a single round of write-replicate-release with no validation phase.
// Grounded on original_source/protocol/Scar/Scar.h's lock primitives,
// reused here without Silo/Scar's deferred validation.
package twopl

import (
	"scar/pkg/message"
	"scar/pkg/partition"
	"scar/pkg/protocol"
	"scar/pkg/table"
	"scar/pkg/txn"
)

// TwoPL is the commit protocol state machine bound to one coordinator's
// database and partitioner.
type TwoPL struct {
	db          *table.Database
	partitioner partition.Partitioner
	coordinator int
}

func New(db *table.Database, partitioner partition.Partitioner, coordinatorID int) *TwoPL {
	return &TwoPL{db: db, partitioner: partitioner, coordinator: coordinatorID}
}

func (s *TwoPL) sync(t *txn.Transaction, waitResponse bool) {
	t.MessageFlusher()
	if waitResponse {
		for t.PendingResponses > 0 {
			t.RemoteRequestHandler()
		}
	}
}

// Search implements protocol.Protocol's local read without taking a lock;
// used only for local-index reads that never participate in 2PL's locking.
func (s *TwoPL) Search(tableID, partitionID uint32, key []byte) []byte {
	return s.db.FindTable(tableID, partitionID).Search(key)
}

// BindReadHandler implements protocol.Protocol: a local-index read bypasses
// locking entirely; every other read goes through LockAndRead, so
// search_for_read/search_for_update takes its lock inline rather than at
// commit time, per spec.md §4.4.3.
func (s *TwoPL) BindReadHandler(t *txn.Transaction, outbound []*message.Message) txn.ReadRequestHandler {
	return func(tableID, partitionID uint32, keyOffset int, key, value []byte, localIndexRead bool) uint64 {
		if localIndexRead {
			copy(value, s.Search(tableID, partitionID, key))
			return 0
		}
		v, tidValue, ok := s.LockAndRead(t, tableID, partitionID, keyOffset, key, outbound)
		if !ok {
			t.AbortLock = true
			return 0
		}
		copy(value, v)
		return tidValue
	}
}

// LockAndRead acquires the record's exclusive lock (2PL uses the TID's
// single lock bit for both readers and writers -- there is no shared-lock
// mode) and returns its current value, blocking via the executor's message
// loop if the record is remote. The remote path's value and tid are
// patched into t.ReadSet[keyOffset] by the LockResponse handler once the
// reply arrives; LockAndRead reads them back out after the sync pump
// drains, rather than returning them directly.
func (s *TwoPL) LockAndRead(t *txn.Transaction, tableID, partitionID uint32, keyOffset int, key []byte, outbound []*message.Message) (value []byte, tidValue uint64, ok bool) {
	tbl := s.db.FindTable(tableID, partitionID)
	if s.partitioner.HasMasterPartition(partitionID) {
		latest, locked := tbl.SearchMetadata(key).Lock()
		if !locked {
			return nil, 0, false
		}
		return tbl.Search(key), latest, true
	}

	t.PendingResponses++
	dest := s.partitioner.MasterCoordinator(partitionID)
	outbound[dest].AddPiece(message.Piece{
		Type:        message.LockRequest,
		TableID:     tableID,
		PartitionID: partitionID,
		Payload:     protocol.EncodeKeyOffsetPayload(keyOffset, key),
	})
	s.sync(t, true)
	if t.AbortLock {
		return nil, 0, false
	}
	rk := &t.ReadSet[keyOffset]
	return rk.Value, rk.Tid, true
}

// Commit implements spec.md §4.4.3's single-round commit: write locally,
// replicate, release -- no lock phase (already done at read/write time) and
// no validation phase.
func (s *TwoPL) Commit(t *txn.Transaction, outbound []*message.Message) bool {
	if t.AbortLock {
		s.Abort(t, outbound)
		return false
	}
	s.writeAndReplicate(t, outbound)
	s.releaseLocks(t, outbound)
	return true
}

// Abort releases every lock this transaction is holding -- both its
// write-set (tagged FlagWriteLock when locked) and its read-set, since 2PL
// locks readers with the same exclusive bit.
func (s *TwoPL) Abort(t *txn.Transaction, outbound []*message.Message) {
	release := func(tableID, partitionID uint32, key []byte) {
		tbl := s.db.FindTable(tableID, partitionID)
		if s.partitioner.HasMasterPartition(partitionID) {
			tbl.SearchMetadata(key).Unlock()
		} else {
			dest := s.partitioner.MasterCoordinator(partitionID)
			outbound[dest].AddPiece(message.Piece{
				Type:        message.AbortRequest,
				TableID:     tableID,
				PartitionID: partitionID,
				Payload:     protocol.EncodeKeyValuePayload(key, nil),
			})
		}
	}
	for i := range t.WriteSet {
		wk := &t.WriteSet[i]
		if wk.WriteLockHeld() {
			release(wk.TableID, wk.PartitionID, wk.Key)
		}
	}
	for i := range t.ReadSet {
		rk := &t.ReadSet[i]
		if !rk.LocalIndexRead() && t.GetWriteKey(rk.Key) == nil {
			release(rk.TableID, rk.PartitionID, rk.Key)
		}
	}
	s.sync(t, false)
}

func (s *TwoPL) writeAndReplicate(t *txn.Transaction, outbound []*message.Message) {
	for i := range t.WriteSet {
		wk := &t.WriteSet[i]
		tbl := s.db.FindTable(wk.TableID, wk.PartitionID)

		if s.partitioner.HasMasterPartition(wk.PartitionID) {
			tbl.Update(wk.Key, wk.Value)
		} else {
			dest := s.partitioner.MasterCoordinator(wk.PartitionID)
			outbound[dest].AddPiece(message.Piece{
				Type:        message.WriteRequest,
				TableID:     wk.TableID,
				PartitionID: wk.PartitionID,
				Payload:     protocol.EncodeKeyValuePayload(wk.Key, wk.Value),
			})
		}

		for k := 0; k < s.partitioner.TotalCoordinators(); k++ {
			if !s.partitioner.IsPartitionReplicatedOn(wk.PartitionID, k) {
				continue
			}
			if k == s.partitioner.MasterCoordinator(wk.PartitionID) {
				continue
			}
			if k == s.coordinator {
				tbl.Update(wk.Key, wk.Value)
			} else {
				outbound[k].AddPiece(message.Piece{
					Type:        message.ReplicateRequest,
					TableID:     wk.TableID,
					PartitionID: wk.PartitionID,
					Payload:     protocol.EncodeReplicatePayload(0, wk.Key, wk.Value),
				})
			}
		}
	}
	s.sync(t, true)
}

// releaseLocks unlocks every record this transaction touched, whether read
// or written, since 2PL holds its locks through commit rather than just
// through validation.
func (s *TwoPL) releaseLocks(t *txn.Transaction, outbound []*message.Message) {
	release := func(tableID, partitionID uint32, key, value []byte, isWrite bool) {
		tbl := s.db.FindTable(tableID, partitionID)
		if s.partitioner.HasMasterPartition(partitionID) {
			if isWrite {
				tbl.Update(key, value)
			}
			tbl.SearchMetadata(key).Unlock()
		} else {
			dest := s.partitioner.MasterCoordinator(partitionID)
			outbound[dest].AddPiece(message.Piece{
				Type:        message.ReleaseLockRequest,
				TableID:     tableID,
				PartitionID: partitionID,
				Payload:     protocol.EncodeReplicatePayload(0, key, value),
			})
		}
	}
	for i := range t.WriteSet {
		wk := &t.WriteSet[i]
		release(wk.TableID, wk.PartitionID, wk.Key, wk.Value, true)
	}
	for i := range t.ReadSet {
		rk := &t.ReadSet[i]
		if !rk.LocalIndexRead() && t.GetWriteKey(rk.Key) == nil {
			release(rk.TableID, rk.PartitionID, rk.Key, nil, false)
		}
	}
	s.sync(t, false)
}
