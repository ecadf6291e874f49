// Package rwkey describes one read or write participation of a transaction
// in a single record, per spec.md §3.
package rwkey

// Flags are the bitflags carried by a Key, matching spec.md §3's
// read_request / local_index_read / write_lock / execution_processed /
// read_validation_success / wts_change_in_read_validation fields.
type Flags uint8

const (
	FlagReadRequest Flags = 1 << iota
	FlagLocalIndexRead
	FlagWriteLock
	FlagExecutionProcessed
	FlagReadValidationSuccess
	FlagWtsChangeInReadValidation
)

// Key is one entry in a transaction's read-set or write-set.
type Key struct {
	TableID     uint32
	PartitionID uint32
	Key         []byte
	Value       []byte
	Tid         uint64
	KeyOffset   uint32
	flags       Flags
}

// New constructs a Key for the given table/partition/key.
func New(tableID, partitionID uint32, key []byte) Key {
	return Key{TableID: tableID, PartitionID: partitionID, Key: key}
}

func (k *Key) Has(f Flags) bool      { return k.flags&f != 0 }
func (k *Key) Set(f Flags)           { k.flags |= f }
func (k *Key) Clear(f Flags)         { k.flags &^= f }
func (k *Key) SetTid(tid uint64)     { k.Tid = tid }
func (k *Key) GetTid() uint64        { return k.Tid }
func (k *Key) SetValue(v []byte)     { k.Value = v }
func (k *Key) WriteLockHeld() bool   { return k.Has(FlagWriteLock) }
func (k *Key) LocalIndexRead() bool  { return k.Has(FlagLocalIndexRead) }
func (k *Key) ReadValidated() bool   { return k.Has(FlagReadValidationSuccess) }
func (k *Key) WtsChangedOnRead() bool {
	return k.Has(FlagWtsChangeInReadValidation)
}
