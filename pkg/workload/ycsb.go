// Package workload supplements spec.md §4.8's external TPC-C/YCSB
// generator contract with one concrete, runnable implementation: a minimal
// YCSB-style generator built the way go-ycsb/pkg/generator builds its
// distributions, but reimplemented against this module's deterministic
// random.Source so the executor's seed-replay invariant (spec.md §9) holds
// across a retried transaction. TPC-C remains an external contract only.
package workload

import (
	"fmt"

	"scar/pkg/random"
	"scar/pkg/table"
	"scar/pkg/txn"
)

const defaultFieldSize = 100

// Config controls the shape of generated transactions.
type Config struct {
	KeyCount       int     // keys per partition
	OperationCount int     // read/read-modify-write ops per transaction
	ReadRatio      float64 // fraction of ops that are read-only, in [0,1]
	Zipfian        bool    // skew key choice toward a hot subset, vs. uniform
}

// YCSB is a demo workload bound to a single table and database, driving the
// property tests and the executor's end-to-end tests (spec.md §8).
type YCSB struct {
	db      *table.Database
	tableID uint32
	cfg     Config
	zipf    *Zipfian
}

// New builds a YCSB generator over tableID within db.
func New(db *table.Database, tableID uint32, cfg Config) *YCSB {
	if cfg.KeyCount <= 0 {
		cfg.KeyCount = 1
	}
	if cfg.OperationCount <= 0 {
		cfg.OperationCount = 1
	}
	y := &YCSB{db: db, tableID: tableID, cfg: cfg}
	if cfg.Zipfian {
		y.zipf = NewZipfian(int64(cfg.KeyCount))
	}
	return y
}

func (y *YCSB) pickKey(rnd *random.Source, partitionID uint32) []byte {
	var idx int64
	if y.zipf != nil {
		idx = y.zipf.Next(rnd)
	} else {
		idx = int64(rnd.Uniform(0, y.cfg.KeyCount-1))
	}
	return []byte(fmt.Sprintf("p%d-k%d", partitionID, idx))
}

// op is one read or read-modify-write decided at transaction-build time;
// the procedure replays the same ops verbatim on retry.
type op struct {
	key      []byte
	readOnly bool
}

// NextTransaction decides this transaction's operations up front (spec.md
// §9: a retried transaction must see the same keys, never re-roll them),
// then returns a Transaction whose procedure replays those decisions.
func (y *YCSB) NextTransaction(coordinatorID int, partitionID uint32, id uint64, rnd *random.Source) *txn.Transaction {
	ops := make([]op, y.cfg.OperationCount)
	for i := range ops {
		ops[i] = op{
			key:      y.pickKey(rnd, partitionID),
			readOnly: rnd.Float64() < y.cfg.ReadRatio,
		}
	}

	procedure := func(t *txn.Transaction) txn.Result {
		value := make([]byte, defaultFieldSize)
		for _, o := range ops {
			if o.readOnly {
				t.SearchForRead(y.tableID, partitionID, o.key, value)
			} else {
				t.SearchForUpdate(y.tableID, partitionID, o.key, value)
				newValue := append([]byte(nil), value...)
				if len(newValue) > 0 {
					newValue[0]++
				}
				t.Update(y.tableID, partitionID, o.key, newValue)
			}
		}
		return txn.ReadyToCommit
	}

	return txn.New(coordinatorID, partitionID, id, procedure)
}

// SeedKeys populates every key this workload may ever choose for
// partitionID with an initial value, so NextTransaction's reads never hit
// an empty record on a fresh database.
func (y *YCSB) SeedKeys(partitionID uint32) {
	tbl := y.db.FindTable(y.tableID, partitionID)
	value := make([]byte, defaultFieldSize)
	for i := 0; i < y.cfg.KeyCount; i++ {
		key := []byte(fmt.Sprintf("p%d-k%d", partitionID, i))
		tbl.Seed(key, value, 0)
	}
}
