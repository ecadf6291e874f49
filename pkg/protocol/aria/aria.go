package aria

import (
	"scar/pkg/message"
	"scar/pkg/partition"
	"scar/pkg/protocol"
	"scar/pkg/table"
	"scar/pkg/txn"
)

// Aria is the commit protocol state machine bound to one coordinator's
// database, partitioner and current epoch's reservation table.
type Aria struct {
	db          *table.Database
	partitioner partition.Partitioner
	coordinator int
	reservation *ReservationTable
	fallback    *LockManager
}

func New(db *table.Database, partitioner partition.Partitioner, coordinatorID int, nLockManager int) *Aria {
	return &Aria{
		db:          db,
		partitioner: partitioner,
		coordinator: coordinatorID,
		reservation: NewReservationTable(),
		fallback:    NewLockManager(db, nLockManager),
	}
}

// Reservations exposes the current epoch's reservation table so the
// executor can Reset it between epochs.
func (a *Aria) Reservations() *ReservationTable { return a.reservation }

// Search implements protocol.Protocol's local read; reads during Aria's
// execution phase are speculative and use the value as of the start of the
// epoch (spec.md §4.4.5), which is whatever the table currently holds since
// writes are buffered in the write set rather than applied immediately.
func (a *Aria) Search(tableID, partitionID uint32, key []byte) []byte {
	return a.db.FindTable(tableID, partitionID).Search(key)
}

// BindReadHandler implements protocol.Protocol. Aria's epoch batches are
// scheduled per-partition by the coordinator driving them, so reads never
// cross coordinators; every read resolves synchronously against the local
// table (spec.md §4.4.5's speculative execution phase).
func (a *Aria) BindReadHandler(t *txn.Transaction, outbound []*message.Message) txn.ReadRequestHandler {
	return func(tableID, partitionID uint32, keyOffset int, key, value []byte, localIndexRead bool) uint64 {
		copy(value, a.Search(tableID, partitionID, key))
		return a.db.FindTable(tableID, partitionID).SearchMetadata(key).Raw()
	}
}

// Reserve declares t's read and write sets against the epoch's reservation
// table; every worker on this node calls this for its whole batch before
// any worker proceeds to CheckConflicts, implementing the "each write is
// reserved against the record" step of spec.md §4.4.5.
func (a *Aria) Reserve(t *txn.Transaction) {
	for i := range t.ReadSet {
		rk := &t.ReadSet[i]
		if rk.LocalIndexRead() {
			continue
		}
		a.reservation.ReserveRead(rk.Key, t.TidOffset)
	}
	for i := range t.WriteSet {
		a.reservation.ReserveWrite(t.WriteSet[i].Key, t.TidOffset)
	}
}

// CheckConflicts implements spec.md §4.4.5's WAW/WAR/RAW detection: t
// conflicts with any transaction of strictly lower tid_offset that also
// touched one of its keys. A WAW or WAR flag sends t's commit through the
// fallback LockManager (a lower-offset writer touched the record); RAW is
// only recorded and by itself neither aborts t nor sends it to the
// fallback, since t's own write has not applied yet and so cannot disturb
// the earlier reader.
func (a *Aria) CheckConflicts(t *txn.Transaction) {
	for i := range t.WriteSet {
		key := t.WriteSet[i].Key
		if w, ok := a.reservation.Writer(key); ok && w < t.TidOffset {
			t.Waw = true
		}
		if r, ok := a.reservation.Reader(key); ok && r < t.TidOffset {
			t.Raw = true
		}
	}
	for i := range t.ReadSet {
		rk := &t.ReadSet[i]
		if rk.LocalIndexRead() {
			continue
		}
		if w, ok := a.reservation.Writer(rk.Key); ok && w < t.TidOffset {
			t.War = true
		}
	}
}

// hasConflict reports whether t must go through the fallback phase.
func (a *Aria) hasConflict(t *txn.Transaction) bool {
	return t.Waw || t.War
}

// Commit applies t's writes and replicates them, with no validation phase
// (the epoch's conflict check already decided commit eligibility). A
// transaction with a WAW or WAR conflict applies its writes through the
// fallback LockManager instead.
func (a *Aria) Commit(t *txn.Transaction, outbound []*message.Message) bool {
	if a.hasConflict(t) {
		ok := a.fallback.Run(t)
		if !ok {
			return false
		}
	} else {
		a.applyWrites(t)
	}
	a.replicate(t, outbound)
	return true
}

// Abort only sets AbortNoRetry: Aria never retries within an epoch
// (spec.md §4.4.5), and nothing re-queues t into a later epoch.
func (a *Aria) Abort(t *txn.Transaction, outbound []*message.Message) {
	t.AbortNoRetry = true
}

func (a *Aria) applyWrites(t *txn.Transaction) {
	for i := range t.WriteSet {
		wk := &t.WriteSet[i]
		a.db.FindTable(wk.TableID, wk.PartitionID).Update(wk.Key, wk.Value)
	}
}

func (a *Aria) replicate(t *txn.Transaction, outbound []*message.Message) {
	for i := range t.WriteSet {
		wk := &t.WriteSet[i]
		for k := 0; k < a.partitioner.TotalCoordinators(); k++ {
			if k == a.coordinator || !a.partitioner.IsPartitionReplicatedOn(wk.PartitionID, k) {
				continue
			}
			outbound[k].AddPiece(message.Piece{
				Type:        message.ReplicateRequest,
				TableID:     wk.TableID,
				PartitionID: wk.PartitionID,
				Payload:     protocol.EncodeReplicatePayload(uint64(t.Epoch), wk.Key, wk.Value),
			})
		}
	}
	t.MessageFlusher()
}
