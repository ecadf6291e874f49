// Package silo implements the baseline OCC commit protocol of spec.md
// §4.4.1, grounded on original_source/protocol/Scar/Scar.h (Scar's direct
// ancestor): lock the write set, compute a commit timestamp, validate the
// read set, write and replicate, then release locks.
package silo

import (
	"scar/pkg/io"
	"scar/pkg/message"
	"scar/pkg/partition"
	"scar/pkg/protocol"
	"scar/pkg/rwkey"
	"scar/pkg/table"
	"scar/pkg/tid"
	"scar/pkg/txn"
)

// Silo is the commit protocol state machine bound to one coordinator's
// database and partitioner.
type Silo struct {
	db          *table.Database
	partitioner partition.Partitioner
	coordinator int

	// Ledger records every locally-mastered lock grant/release, nil unless
	// the coordinator was configured with a LockLedgerDir. It is a crash
	// recovery aid (spec.md's Non-goals exclude a data WAL), never on the
	// commit path's success or failure.
	Ledger *io.LockLedger
}

func New(db *table.Database, partitioner partition.Partitioner, coordinatorID int) *Silo {
	return &Silo{db: db, partitioner: partitioner, coordinator: coordinatorID}
}

func (s *Silo) record(t *txn.Transaction, wk *rwkey.Key, phase io.LockPhase) {
	if s.Ledger == nil {
		return
	}
	s.Ledger.Record(io.LockIntent{
		TxnID: t.ID, TableID: wk.TableID, PartitionID: wk.PartitionID,
		Key: string(wk.Key), Phase: phase,
	})
}

// Search implements protocol.Protocol's local read.
func (s *Silo) Search(tableID, partitionID uint32, key []byte) []byte {
	return s.db.FindTable(tableID, partitionID).Search(key)
}

// BindReadHandler implements protocol.Protocol: a local-master or
// local-index read happens synchronously against db; any other read sends
// a SEARCH_REQ to the partition's master and returns 0, leaving the
// read-set entry to be patched by the SearchResponse handler once the
// reply arrives (spec.md §4.3).
func (s *Silo) BindReadHandler(t *txn.Transaction, outbound []*message.Message) txn.ReadRequestHandler {
	return func(tableID, partitionID uint32, keyOffset int, key, value []byte, localIndexRead bool) uint64 {
		if localIndexRead || s.partitioner.HasMasterPartition(partitionID) {
			copy(value, s.Search(tableID, partitionID, key))
			return s.db.FindTable(tableID, partitionID).SearchMetadata(key).Raw()
		}
		t.PendingResponses++
		dest := s.partitioner.MasterCoordinator(partitionID)
		outbound[dest].AddPiece(message.Piece{
			Type:        message.SearchRequest,
			TableID:     tableID,
			PartitionID: partitionID,
			Payload:     protocol.EncodeKeyOffsetPayload(keyOffset, key),
		})
		return 0
	}
}

func (s *Silo) sync(t *txn.Transaction, waitResponse bool) {
	t.MessageFlusher()
	if waitResponse {
		for t.PendingResponses > 0 {
			t.RemoteRequestHandler()
		}
	}
}

// Commit implements spec.md §4.4.1's five-step sequence.
func (s *Silo) Commit(t *txn.Transaction, outbound []*message.Message) bool {
	if s.lockWriteSet(t, outbound) {
		s.Abort(t, outbound)
		return false
	}

	s.computeCommitTs(t)

	if !s.validateReadSet(t, outbound) {
		s.Abort(t, outbound)
		return false
	}

	s.writeAndReplicate(t, outbound)
	s.releaseLocks(t, outbound)
	return true
}

// Abort unlocks any write-set keys this transaction had already locked,
// firing ABORT_REQ to remote masters for the rest, and does not wait for
// replies (spec.md §4.4.1's abort path).
func (s *Silo) Abort(t *txn.Transaction, outbound []*message.Message) {
	for i := range t.WriteSet {
		wk := &t.WriteSet[i]
		if !wk.WriteLockHeld() {
			continue
		}
		tbl := s.db.FindTable(wk.TableID, wk.PartitionID)
		if s.partitioner.HasMasterPartition(wk.PartitionID) {
			tbl.SearchMetadata(wk.Key).Unlock()
			s.record(t, wk, io.LockReleased)
		} else {
			dest := s.partitioner.MasterCoordinator(wk.PartitionID)
			outbound[dest].AddPiece(message.Piece{
				Type:        message.AbortRequest,
				TableID:     wk.TableID,
				PartitionID: wk.PartitionID,
				Payload:     protocol.EncodeKeyValuePayload(wk.Key, nil),
			})
		}
	}
	s.sync(t, false)
}

func (s *Silo) lockWriteSet(t *txn.Transaction, outbound []*message.Message) bool {
	for i := range t.WriteSet {
		wk := &t.WriteSet[i]
		tbl := s.db.FindTable(wk.TableID, wk.PartitionID)

		if s.partitioner.HasMasterPartition(wk.PartitionID) {
			latest, ok := tbl.SearchMetadata(wk.Key).Lock()
			if !ok {
				t.AbortLock = true
				break
			}
			wk.Set(rwkey.FlagWriteLock)
			wk.SetTid(latest)
			s.record(t, wk, io.LockGranted)
		} else {
			t.PendingResponses++
			dest := s.partitioner.MasterCoordinator(wk.PartitionID)
			outbound[dest].AddPiece(message.Piece{
				Type:        message.LockRequest,
				TableID:     wk.TableID,
				PartitionID: wk.PartitionID,
				Payload:     protocol.EncodeKeyOffsetPayload(i, wk.Key),
			})
		}
	}
	s.sync(t, true)
	return t.AbortLock
}

func (s *Silo) computeCommitTs(t *txn.Transaction) {
	var ts uint64
	for i := range t.ReadSet {
		if w := tid.GetWts(t.ReadSet[i].Tid); w > ts {
			ts = w
		}
	}
	for i := range t.WriteSet {
		if w := tid.GetWts(t.WriteSet[i].Tid) + 1; w > ts {
			ts = w
		}
	}
	t.CommitWts = ts
	t.CommitRts = ts
}

func (s *Silo) validateReadSet(t *txn.Transaction, outbound []*message.Message) bool {
	commitTs := t.CommitWts

	for i := range t.ReadSet {
		rk := &t.ReadSet[i]
		if rk.LocalIndexRead() {
			continue
		}
		if t.GetWriteKey(rk.Key) != nil {
			continue // locked by this txn; the lock step does not recheck its wts
		}

		tbl := s.db.FindTable(rk.TableID, rk.PartitionID)
		if s.partitioner.HasMasterPartition(rk.PartitionID) {
			// Silo validates a read by wts equality and the absence of a
			// foreign lock; rts plays no part.
			written := tbl.SearchMetadata(rk.Key).Raw()
			if tid.GetWts(written) != tid.GetWts(rk.Tid) || tid.IsLocked(written) {
				t.AbortReadValidation = true
				break
			}
			rk.Set(rwkey.FlagReadValidationSuccess)
			if tid.GetWts(written) != tid.GetWts(rk.Tid) {
				rk.Set(rwkey.FlagWtsChangeInReadValidation)
				rk.SetTid(written)
			}
		} else {
			t.PendingResponses++
			dest := s.partitioner.MasterCoordinator(rk.PartitionID)
			outbound[dest].AddPiece(message.Piece{
				Type:        message.ReadValidationRequest,
				TableID:     rk.TableID,
				PartitionID: rk.PartitionID,
				Payload:     protocol.EncodeReadValidationRequestPayload(i, rk.Tid, commitTs, rk.Key),
			})
		}
	}
	s.sync(t, true)
	return !t.AbortReadValidation
}

func (s *Silo) writeAndReplicate(t *txn.Transaction, outbound []*message.Message) {
	commitWts := t.CommitWts

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
				meta := tbl.SearchMetadata(wk.Key)
				meta.Lock()
				tbl.Update(wk.Key, wk.Value)
				meta.UnlockWithCommit(commitWts)
			} else {
				outbound[k].AddPiece(message.Piece{
					Type:        message.ReplicateRequest,
					TableID:     wk.TableID,
					PartitionID: wk.PartitionID,
					Payload:     protocol.EncodeReplicatePayload(commitWts, wk.Key, wk.Value),
				})
			}
		}
	}
	s.sync(t, true)
}

func (s *Silo) releaseLocks(t *txn.Transaction, outbound []*message.Message) {
	commitWts := t.CommitWts

	for i := range t.WriteSet {
		wk := &t.WriteSet[i]
		tbl := s.db.FindTable(wk.TableID, wk.PartitionID)

		if s.partitioner.HasMasterPartition(wk.PartitionID) {
			// Value already written by writeAndReplicate; only the lock
			// needs releasing here.
			tbl.SearchMetadata(wk.Key).UnlockWithCommit(commitWts)
			s.record(t, wk, io.LockReleased)
		} else {
			dest := s.partitioner.MasterCoordinator(wk.PartitionID)
			outbound[dest].AddPiece(message.Piece{
				Type:        message.ReleaseLockRequest,
				TableID:     wk.TableID,
				PartitionID: wk.PartitionID,
				Payload:     protocol.EncodeReplicatePayload(commitWts, wk.Key, wk.Value),
			})
		}
	}
	s.sync(t, false)
}
