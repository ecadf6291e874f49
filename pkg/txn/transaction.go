// Package txn implements the per-worker, exclusively-owned Transaction
// object of spec.md §3/§4.3: its read/write sets, pending-response counter,
// abort flags, commit timestamps, and the handler hooks the executor binds
// before each call to Execute.
package txn

import (
	"time"

	"scar/pkg/rwkey"
)

// Result is the outcome of one Execute call, per spec.md §4.3.
type Result int

const (
	ReadyToCommit Result = iota
	Abort
	AbortNoRetry
)

func (r Result) String() string {
	switch r {
	case ReadyToCommit:
		return "READY_TO_COMMIT"
	case Abort:
		return "ABORT"
	case AbortNoRetry:
		return "ABORT_NORETRY"
	default:
		return "UNKNOWN"
	}
}

// ReadRequestHandler performs (or forwards) a single read, returning the tid
// observed at read time. For a local-master or local-index read the value
// is filled synchronously; for a remote read it enqueues a search message
// and returns 0, with the read-set entry patched in later by the executor's
// response handler (spec.md §4.3).
type ReadRequestHandler func(tableID, partitionID uint32, keyOffset int, key []byte, value []byte, localIndexRead bool) uint64

// Procedure is the workload-authored transaction body: it issues reads and
// writes against txn and returns the final Result. It may run more than
// once across retries of the same Transaction object.
type Procedure func(txn *Transaction) Result

// Transaction is owned by exactly one worker for its entire lifetime; it is
// reused across retries via Reset rather than reallocated.
type Transaction struct {
	CoordinatorID int
	PartitionID   uint32
	ID            uint64
	Epoch         uint32
	StartTime     time.Time

	ReadSet  []rwkey.Key
	WriteSet []rwkey.Key

	PendingResponses int
	NetworkSize      int64

	AbortLock           bool
	AbortReadValidation bool
	AbortNoRetry        bool

	CommitRts uint64
	CommitWts uint64

	// Aria-only bookkeeping (spec.md §4.4.5): TidOffset orders transactions
	// deterministically within an epoch; Waw/War/Raw record the conflict
	// classes found against lower-offset transactions in the same epoch.
	TidOffset              int
	Waw, War, Raw          bool
	DistributedTransaction bool

	// Handler hooks, bound by the executor in executor.Worker.bindHandlers
	// before Execute is called (spec.md §4.3 and §9's "handler binding").
	ReadRequestHandler   ReadRequestHandler
	RemoteRequestHandler func() int
	MessageFlusher       func()

	procedure Procedure
}

// New constructs a fresh Transaction for the given workload procedure.
func New(coordinatorID int, partitionID uint32, id uint64, procedure Procedure) *Transaction {
	t := &Transaction{
		CoordinatorID: coordinatorID,
		PartitionID:   partitionID,
		ID:            id,
		procedure:     procedure,
	}
	t.Reset()
	return t
}

// Reset clears the read/write sets and abort flags so the same object can
// be replayed against the saved RNG seed, per spec.md §4.3's retry
// lifecycle. Handler hooks and the procedure are preserved.
func (t *Transaction) Reset() {
	t.StartTime = time.Now()
	t.ReadSet = t.ReadSet[:0]
	t.WriteSet = t.WriteSet[:0]
	t.PendingResponses = 0
	t.NetworkSize = 0
	t.AbortLock = false
	t.AbortReadValidation = false
	t.AbortNoRetry = false
	t.CommitRts = 0
	t.CommitWts = 0
	t.Waw = false
	t.War = false
	t.Raw = false
}

// Execute runs the bound procedure and returns its result. It may be called
// repeatedly after Reset.
func (t *Transaction) Execute() Result {
	return t.procedure(t)
}

// GetReadKey returns the read-set entry for key, or nil.
func (t *Transaction) GetReadKey(key []byte) *rwkey.Key {
	for i := range t.ReadSet {
		if string(t.ReadSet[i].Key) == string(key) {
			return &t.ReadSet[i]
		}
	}
	return nil
}

// GetWriteKey returns the write-set entry for key, or nil.
func (t *Transaction) GetWriteKey(key []byte) *rwkey.Key {
	for i := range t.WriteSet {
		if string(t.WriteSet[i].Key) == string(key) {
			return &t.WriteSet[i]
		}
	}
	return nil
}

func (t *Transaction) addToReadSet(k rwkey.Key) int {
	t.ReadSet = append(t.ReadSet, k)
	return len(t.ReadSet) - 1
}

func (t *Transaction) addToWriteSet(k rwkey.Key) int {
	t.WriteSet = append(t.WriteSet, k)
	return len(t.WriteSet) - 1
}

// SearchForRead records a read-only participation in (tableID, partitionID)
// for key, dispatches it through ReadRequestHandler, and copies the result
// into value. Matches spec.md §4.3's search_for_read.
func (t *Transaction) SearchForRead(tableID, partitionID uint32, key []byte, value []byte) {
	rk := rwkey.New(tableID, partitionID, key)
	rk.Set(rwkey.FlagReadRequest)
	offset := t.addToReadSet(rk)

	tidValue := t.ReadRequestHandler(tableID, partitionID, offset, key, value, false)
	t.ReadSet[offset].SetTid(tidValue)
	t.ReadSet[offset].Value = append([]byte(nil), value...)
}

// SearchForUpdate performs the read half of spec.md §4.3's
// search_for_update (read-modify-write) exactly as SearchForRead does; it
// stages no write-set entry, so the caller stages the write with Update.
func (t *Transaction) SearchForUpdate(tableID, partitionID uint32, key []byte, value []byte) {
	t.SearchForRead(tableID, partitionID, key, value)
}

// SearchLocalIndex performs a local-only read that never needs read
// validation (spec.md §3's local_index_read flag) and is never sent as a
// remote message.
func (t *Transaction) SearchLocalIndex(tableID, partitionID uint32, key []byte, value []byte) {
	rk := rwkey.New(tableID, partitionID, key)
	rk.Set(rwkey.FlagReadRequest)
	rk.Set(rwkey.FlagLocalIndexRead)
	offset := t.addToReadSet(rk)

	tidValue := t.ReadRequestHandler(tableID, partitionID, offset, key, value, true)
	t.ReadSet[offset].SetTid(tidValue)
	t.ReadSet[offset].Value = append([]byte(nil), value...)
}

// Update stages a write-set entry for key := value. The write does not take
// effect until the commit protocol's write phase runs. A second Update of
// the same key replaces the staged value instead of adding a second entry.
func (t *Transaction) Update(tableID, partitionID uint32, key []byte, value []byte) {
	if wk := t.GetWriteKey(key); wk != nil && wk.TableID == tableID && wk.PartitionID == partitionID {
		wk.SetValue(append([]byte(nil), value...))
		return
	}
	wk := rwkey.New(tableID, partitionID, key)
	wk.SetValue(append([]byte(nil), value...))
	t.addToWriteSet(wk)
}

// IsReadOnly reports whether the transaction has staged no writes.
func (t *Transaction) IsReadOnly() bool {
	return len(t.WriteSet) == 0
}
