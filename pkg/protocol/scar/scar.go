// Package scar implements the dynamic-timestamp-ordering variant of Silo
// described by spec.md §4.4.2, grounded directly on
// original_source/protocol/Scar/Scar.h: split commit_rts/commit_wts, rts
// extension during read validation, and a blind-write anti-phantom check
// folded into the lock step.
package scar

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

// Scar is the commit protocol state machine bound to one coordinator's
// database and partitioner.
type Scar struct {
	db          *table.Database
	partitioner partition.Partitioner
	coordinator int

	// Ledger records every locally-mastered lock grant/release, nil unless
	// the coordinator was configured with a LockLedgerDir.
	Ledger *io.LockLedger
}

func New(db *table.Database, partitioner partition.Partitioner, coordinatorID int) *Scar {
	return &Scar{db: db, partitioner: partitioner, coordinator: coordinatorID}
}

func (s *Scar) record(t *txn.Transaction, wk *rwkey.Key, phase io.LockPhase) {
	if s.Ledger == nil {
		return
	}
	s.Ledger.Record(io.LockIntent{
		TxnID: t.ID, TableID: wk.TableID, PartitionID: wk.PartitionID,
		Key: string(wk.Key), Phase: phase,
	})
}

// Search implements protocol.Protocol's local read.
func (s *Scar) Search(tableID, partitionID uint32, key []byte) []byte {
	return s.db.FindTable(tableID, partitionID).Search(key)
}

// BindReadHandler implements protocol.Protocol, identically to Silo's: a
// local-master or local-index read happens synchronously; any other read
// sends a SEARCH_REQ to the partition's master.
func (s *Scar) BindReadHandler(t *txn.Transaction, outbound []*message.Message) txn.ReadRequestHandler {
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

func (s *Scar) sync(t *txn.Transaction, waitResponse bool) {
	t.MessageFlusher()
	if waitResponse {
		for t.PendingResponses > 0 {
			t.RemoteRequestHandler()
		}
	}
}

// Commit runs Silo's five-step sequence with Scar's timestamp-splitting and
// rts-extension behavior (spec.md §4.4.2).
func (s *Scar) Commit(t *txn.Transaction, outbound []*message.Message) bool {
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

// Abort mirrors silo.Abort: unlock write keys already locked locally, fire
// ABORT_REQ for the rest, no waiting.
func (s *Scar) Abort(t *txn.Transaction, outbound []*message.Message) {
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

// lockWriteSet locks every write-set key, then additionally checks
// wts(latest) == wts(tid_on_read) for keys that were also read -- Scar's
// blind-write anti-phantom guard (spec.md §4.4.2's last bullet): a record
// changed between this transaction's read and its lock attempt must abort
// even though the lock itself succeeded.
func (s *Scar) lockWriteSet(t *txn.Transaction, outbound []*message.Message) bool {
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

			if rk := t.GetReadKey(wk.Key); rk != nil {
				if tid.GetWts(latest) != tid.GetWts(rk.Tid) {
					t.AbortLock = true
					break
				}
			}
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

// computeCommitTs implements spec.md §4.4.2's split timestamps:
// commit_rts = max(wts of reads), commit_wts = max(commit_rts, max(rts of
// writes)+1).
func (s *Scar) computeCommitTs(t *txn.Transaction) {
	var rts uint64
	for i := range t.ReadSet {
		if w := tid.GetWts(t.ReadSet[i].Tid); w > rts {
			rts = w
		}
	}

	wts := rts
	for i := range t.WriteSet {
		if w := tid.GetRts(t.WriteSet[i].Tid) + 1; w > wts {
			wts = w
		}
	}

	t.CommitRts = rts
	t.CommitWts = wts
}

func (s *Scar) validateReadSet(t *txn.Transaction, outbound []*message.Message) bool {
	commitWts := t.CommitWts

	for i := range t.ReadSet {
		rk := &t.ReadSet[i]
		if rk.LocalIndexRead() {
			continue
		}
		if t.GetWriteKey(rk.Key) != nil {
			continue
		}

		tbl := s.db.FindTable(rk.TableID, rk.PartitionID)
		if s.partitioner.HasMasterPartition(rk.PartitionID) {
			ok, written := tbl.SearchMetadata(rk.Key).ValidateReadKey(rk.Tid, commitWts, true)
			if !ok {
				t.AbortReadValidation = true
				break
			}
			rk.Set(rwkey.FlagReadValidationSuccess)
			if tid.GetRts(written) != tid.GetRts(rk.Tid) {
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
				Payload:     protocol.EncodeReadValidationRequestPayload(i, rk.Tid, commitWts, rk.Key),
			})
		}
	}
	s.sync(t, true)
	return !t.AbortReadValidation
}

func (s *Scar) writeAndReplicate(t *txn.Transaction, outbound []*message.Message) {
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

// releaseLocks stamps wts == rts == commit_wts on release (spec.md §4.4.2:
// "release uses commit_wts as both wts and rts").
func (s *Scar) releaseLocks(t *txn.Transaction, outbound []*message.Message) {
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
