// Package aria implements the deterministic OCC-with-reservations protocol
// of spec.md §4.4.5, grounded on
// original_source/protocol/Aria/AriaTransaction.h: an execution phase where
// every write is reserved against its record, a conflict-detection pass
// comparing each transaction to lower-tid_offset transactions in the same
// epoch, and a fallback phase for conflicting transactions.
package aria

import (
	"sync"
	"sync/atomic"
)

const noTidOffset = ^uint32(0)

// reservation tracks, for one record within the current epoch, the lowest
// tid_offset among the transactions that declared a read and the lowest
// among those that declared a write -- exactly the state
// setup_process_requests_in_fallback_phase would need to consult, since
// Aria orders transactions within an epoch by tid_offset and a lower offset
// always wins a conflict.
type reservation struct {
	writerTid atomic.Uint32
	readerTid atomic.Uint32
}

func newReservation() *reservation {
	r := &reservation{}
	r.writerTid.Store(noTidOffset)
	r.readerTid.Store(noTidOffset)
	return r
}

func (r *reservation) reserveWrite(tidOffset uint32) {
	for {
		cur := r.writerTid.Load()
		if cur <= tidOffset {
			return
		}
		if r.writerTid.CompareAndSwap(cur, tidOffset) {
			return
		}
	}
}

func (r *reservation) reserveRead(tidOffset uint32) {
	for {
		cur := r.readerTid.Load()
		if cur <= tidOffset {
			return
		}
		if r.readerTid.CompareAndSwap(cur, tidOffset) {
			return
		}
	}
}

func (r *reservation) writer() (tidOffset uint32, ok bool) {
	v := r.writerTid.Load()
	return v, v != noTidOffset
}

func (r *reservation) reader() (tidOffset uint32, ok bool) {
	v := r.readerTid.Load()
	return v, v != noTidOffset
}

// ReservationTable holds one epoch's worth of record reservations. The
// coordinator creates a fresh table per epoch (Reset) so stale reservations
// never leak across epochs.
type ReservationTable struct {
	mu   sync.RWMutex
	rows map[string]*reservation
}

func NewReservationTable() *ReservationTable {
	return &ReservationTable{rows: make(map[string]*reservation)}
}

// Reset discards every reservation, starting a fresh epoch.
func (rt *ReservationTable) Reset() {
	rt.mu.Lock()
	rt.rows = make(map[string]*reservation)
	rt.mu.Unlock()
}

func (rt *ReservationTable) get(key []byte) *reservation {
	k := string(key)

	rt.mu.RLock()
	r, ok := rt.rows[k]
	rt.mu.RUnlock()
	if ok {
		return r
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if r, ok = rt.rows[k]; ok {
		return r
	}
	r = newReservation()
	rt.rows[k] = r
	return r
}

func (rt *ReservationTable) ReserveWrite(key []byte, tidOffset int) {
	rt.get(key).reserveWrite(uint32(tidOffset))
}

func (rt *ReservationTable) ReserveRead(key []byte, tidOffset int) {
	rt.get(key).reserveRead(uint32(tidOffset))
}

func (rt *ReservationTable) Writer(key []byte) (tidOffset int, ok bool) {
	v, ok := rt.get(key).writer()
	return int(v), ok
}

func (rt *ReservationTable) Reader(key []byte) (tidOffset int, ok bool) {
	v, ok := rt.get(key).reader()
	return int(v), ok
}
