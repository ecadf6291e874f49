package aria

import (
	"sync"

	"scar/pkg/table"
	"scar/pkg/txn"
)

// LockManager reconstructs the empty
// setup_process_requests_in_fallback_phase from original_source: a sharded
// set of mutexes (n_lock_manager of them, per spec.md §4.4.5) that
// conflicting transactions run through to get a real, serialized outcome
// once the epoch's speculative execution found a WAW/WAR conflict.
//
// Run locks each shard its keys map to exactly once, in ascending shard
// index order, which is deadlock-free regardless of how many fallback
// transactions run concurrently across shards.
type LockManager struct {
	db     *table.Database
	shards []sync.Mutex
}

func NewLockManager(db *table.Database, nLockManager int) *LockManager {
	if nLockManager < 1 {
		nLockManager = 1
	}
	return &LockManager{db: db, shards: make([]sync.Mutex, nLockManager)}
}

func (lm *LockManager) shardFor(key []byte) *sync.Mutex {
	h := uint32(2166136261)
	for _, b := range key {
		h ^= uint32(b)
		h *= 16777619
	}
	return &lm.shards[int(h)%len(lm.shards)]
}

// Run executes t deterministically against its declared read/write sets,
// acquiring every distinct record's shard mutex before touching it. Since
// t's read/write sets were already fixed during the execution phase, this
// never needs retries -- it is a single deterministic pass, matching
// Aria's promise that the fallback phase always terminates.
func (lm *LockManager) Run(t *txn.Transaction) bool {
	type touch struct {
		tableID, partitionID uint32
		key                  []byte
	}
	seen := make(map[string]bool)
	var touches []touch
	add := func(tableID, partitionID uint32, key []byte) {
		k := string(key)
		if seen[k] {
			return
		}
		seen[k] = true
		touches = append(touches, touch{tableID, partitionID, key})
	}
	for i := range t.ReadSet {
		rk := &t.ReadSet[i]
		if !rk.LocalIndexRead() {
			add(rk.TableID, rk.PartitionID, rk.Key)
		}
	}
	for i := range t.WriteSet {
		wk := &t.WriteSet[i]
		add(wk.TableID, wk.PartitionID, wk.Key)
	}
	need := make(map[*sync.Mutex]bool)
	for _, tk := range touches {
		need[lm.shardFor(tk.key)] = true
	}

	locked := make([]*sync.Mutex, 0, len(need))
	defer func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}()
	for i := range lm.shards {
		if m := &lm.shards[i]; need[m] {
			m.Lock()
			locked = append(locked, m)
		}
	}

	for i := range t.WriteSet {
		wk := &t.WriteSet[i]
		lm.db.FindTable(wk.TableID, wk.PartitionID).Update(wk.Key, wk.Value)
	}
	return true
}
