// Package table gives a concrete, in-memory implementation of the Table
// contract named as an external collaborator in spec.md §6: a hash map from
// key to (value bytes, atomic TID). Adapted from the teacher's
// file-per-key KeyValueStore (pkg/io) into a sharded in-memory map paired
// with one tid.Word per record, since the engine has no durability
// requirement (spec.md's Non-goals exclude WAL/durability).
package table

import (
	"sync"

	"scar/pkg/tid"
)

const shardCount = 32

type row struct {
	mu    sync.RWMutex
	value []byte
	meta  *tid.Word
}

type shard struct {
	mu   sync.RWMutex
	rows map[string]*row
}

// Table is a sharded map[string][]byte with a per-record atomic metadata
// word, identified by a (table id, partition id) pair within a Database.
type Table struct {
	id          uint32
	partitionID uint32
	valueSize   int
	shards      [shardCount]*shard
}

// New constructs an empty Table. valueSize is advisory (spec.md §6's
// value_size contract); values of any length are still accepted.
func New(id, partitionID uint32, valueSize int) *Table {
	t := &Table{id: id, partitionID: partitionID, valueSize: valueSize}
	for i := range t.shards {
		t.shards[i] = &shard{rows: make(map[string]*row)}
	}
	return t
}

func (t *Table) ID() uint32          { return t.id }
func (t *Table) PartitionID() uint32 { return t.partitionID }
func (t *Table) ValueSize() int      { return t.valueSize }

func (t *Table) shardFor(key []byte) *shard {
	h := fnv32(key)
	return t.shards[h%shardCount]
}

func fnv32(data []byte) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for _, b := range data {
		h ^= uint32(b)
		h *= prime
	}
	return h
}

// getOrCreate returns the row for key, creating it (with a fresh, unlocked,
// wts=0 metadata word) if absent. This stands in for the "insert on first
// write" path a real hash-index table would expose.
func (t *Table) getOrCreate(key []byte) *row {
	s := t.shardFor(key)
	k := string(key)

	s.mu.RLock()
	r, ok := s.rows[k]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rows[k]; ok {
		return r
	}
	r = &row{meta: tid.New(0)}
	s.rows[k] = r
	return r
}

// Search returns a copy of the current value bytes for key, creating the
// record (with an empty value) if it does not exist yet.
func (t *Table) Search(key []byte) []byte {
	r := t.getOrCreate(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]byte(nil), r.value...)
}

// SearchMetadata returns the atomic TID word backing key.
func (t *Table) SearchMetadata(key []byte) *tid.Word {
	return t.getOrCreate(key).meta
}

// SearchValue is an alias of Search kept to mirror spec.md §6's
// search_value naming distinct from search (which in the original also
// returns the opaque row pointer).
func (t *Table) SearchValue(key []byte) []byte {
	return t.Search(key)
}

// Update overwrites the value bytes for key. Callers are responsible for
// holding the record's TID lock first, per the commit protocols in
// pkg/protocol/*.
func (t *Table) Update(key, value []byte) {
	r := t.getOrCreate(key)
	r.mu.Lock()
	r.value = append([]byte(nil), value...)
	r.mu.Unlock()
}

// Seed installs key=value with the given write timestamp, bypassing the
// lock protocol -- used by tests and database bootstrap to set up initial
// rows (spec.md §8 scenario S1's {k1:v1, k2:v2} at wts=0).
func (t *Table) Seed(key, value []byte, wts uint64) {
	r := t.getOrCreate(key)
	r.mu.Lock()
	r.value = append([]byte(nil), value...)
	r.mu.Unlock()
	r.meta.Reset(wts)
}
