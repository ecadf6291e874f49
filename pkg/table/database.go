package table

import (
	"fmt"
	"sync"
)

type tableKey struct {
	tableID     uint32
	partitionID uint32
}

// Database owns every Table in the cluster-visible keyspace, indexed by
// (table id, partition id), matching the `db.find_table(table_id,
// partition_id)` lookup used throughout the executor and protocols.
type Database struct {
	mu     sync.RWMutex
	tables map[tableKey]*Table
}

func NewDatabase() *Database {
	return &Database{tables: make(map[tableKey]*Table)}
}

// CreateTable registers a table; it is a programmer error to register the
// same (tableID, partitionID) pair twice.
func (d *Database) CreateTable(tableID, partitionID uint32, valueSize int) *Table {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := tableKey{tableID, partitionID}
	if _, ok := d.tables[k]; ok {
		panic(fmt.Sprintf("table: duplicate table %d/%d", tableID, partitionID))
	}
	t := New(tableID, partitionID, valueSize)
	d.tables[k] = t
	return t
}

// FindTable returns the table registered for (tableID, partitionID). Panics
// if it was never created -- an unknown table is a configuration error, not
// a runtime condition callers should recover from.
func (d *Database) FindTable(tableID, partitionID uint32) *Table {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[tableKey{tableID, partitionID}]
	if !ok {
		panic(fmt.Sprintf("table: unknown table %d/%d", tableID, partitionID))
	}
	return t
}
