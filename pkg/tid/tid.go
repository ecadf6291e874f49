// Package tid implements the packed 64-bit record metadata word (the "TID")
// and its atomic lock/unlock/validate protocol, as specified by the
// Silo/Scar commit protocols.
//
// Bit layout (matching spec.md §3):
//
//	bit 63:     LOCK
//	bits 62-32: wts (write timestamp, 31 bits)
//	bits 31-5:  rts-wts delta (27 bits, saturating)
//	bits 4-0:   reserved
package tid

import "sync/atomic"

const (
	lockShift  = 63
	wtsShift   = 32
	wtsBits    = 31
	deltaShift = 5
	deltaBits  = 27

	lockMask  = uint64(1) << lockShift
	wtsMask   = (uint64(1)<<wtsBits - 1) << wtsShift
	deltaMask = (uint64(1)<<deltaBits - 1) << deltaShift

	maxWts   = uint64(1)<<wtsBits - 1
	maxDelta = uint64(1)<<deltaBits - 1
)

// Word is the atomic per-record metadata word.
type Word struct {
	v atomic.Uint64
}

// New returns a Word initialized to the given write timestamp, unlocked,
// with rts == wts (zero delta).
func New(wts uint64) *Word {
	w := &Word{}
	w.v.Store(Encode(false, wts, wts))
	return w
}

// Encode packs (locked, wts, rts) into a raw 64-bit value, saturating the
// rts-wts delta if rts is far enough ahead of wts to overflow 27 bits.
func Encode(locked bool, wts, rts uint64) uint64 {
	if wts > maxWts {
		wts = maxWts
	}
	delta := uint64(0)
	if rts > wts {
		delta = rts - wts
	}
	if delta > maxDelta {
		delta = maxDelta
	}
	v := (wts << wtsShift) | (delta << deltaShift)
	if locked {
		v |= lockMask
	}
	return v
}

// IsLocked reports whether the LOCK bit is set in a raw word.
func IsLocked(raw uint64) bool {
	return raw&lockMask != 0
}

// GetWts extracts the write timestamp from a raw word.
func GetWts(raw uint64) uint64 {
	return (raw & wtsMask) >> wtsShift
}

// GetDelta extracts the raw rts-wts delta from a raw word.
func GetDelta(raw uint64) uint64 {
	return (raw & deltaMask) >> deltaShift
}

// GetRts returns rts = wts + delta.
func GetRts(raw uint64) uint64 {
	return GetWts(raw) + GetDelta(raw)
}

// Raw loads the current value without synchronizing with other fields; used
// by callers that only need a snapshot for logging or tests.
func (w *Word) Raw() uint64 {
	return w.v.Load()
}

// Lock attempts to acquire the record. On success it returns the tid value
// observed immediately before the lock bit was set, and true. On failure
// (already locked by someone else) it returns the current value and false;
// callers must not spin, per spec.md §4.1.
func (w *Word) Lock() (latest uint64, success bool) {
	for {
		cur := w.v.Load()
		if IsLocked(cur) {
			return cur, false
		}
		next := cur | lockMask
		if w.v.CompareAndSwap(cur, next) {
			return cur, true
		}
	}
}

// Unlock clears the LOCK bit, leaving wts/rts unchanged. Panics if the word
// is not currently locked -- an unlock on an unlocked record is a protocol
// violation, not a recoverable error.
func (w *Word) Unlock() {
	cur := w.v.Load()
	if !IsLocked(cur) {
		panic("tid: unlock called on an unlocked record")
	}
	w.v.Store(cur &^ lockMask)
}

// UnlockWithCommit clears the LOCK bit and stamps wts = rts = commitWts, the
// release step of Silo/Scar's commit protocol.
func (w *Word) UnlockWithCommit(commitWts uint64) {
	cur := w.v.Load()
	if !IsLocked(cur) {
		panic("tid: unlock called on an unlocked record")
	}
	w.v.Store(Encode(false, commitWts, commitWts))
}

// Reset force-sets the word to an unlocked state with wts == rts == wts,
// bypassing the lock protocol entirely. Used only to seed initial rows
// before a database is opened to transactions.
func (w *Word) Reset(wts uint64) {
	w.v.Store(Encode(false, wts, wts))
}

// GetWts returns the word's current write timestamp.
func (w *Word) GetWts() uint64 {
	return GetWts(w.v.Load())
}

// GetRts returns the word's current read timestamp.
func (w *Word) GetRts() uint64 {
	return GetRts(w.v.Load())
}

// IsLocked reports whether the word is currently locked.
func (w *Word) IsLocked() bool {
	return IsLocked(w.v.Load())
}

// ValidateReadKey implements spec.md §4.1's validate_read_key: it fails if
// the record's wts no longer matches the wts captured at read time, and
// succeeds, whether or not the record is locked, if commitTs is covered by
// the record's rts. Otherwise it fails unless scar is true and the record
// is not locked, in which case it extends rts to commitTs via CAS.
// outWritten receives the tid value the caller should remember for its
// read set.
func (w *Word) ValidateReadKey(readTid uint64, commitTs uint64, scar bool) (ok bool, outWritten uint64) {
	for {
		latest := w.v.Load()
		if GetWts(latest) != GetWts(readTid) {
			return false, 0
		}
		if commitTs <= GetRts(latest) {
			return true, latest
		}
		if !scar {
			return false, 0
		}
		if IsLocked(latest) {
			return false, 0
		}
		next := Encode(false, GetWts(latest), commitTs)
		if w.v.CompareAndSwap(latest, next) {
			return true, next
		}
		// retry from the top: someone else changed the word underneath us.
	}
}
