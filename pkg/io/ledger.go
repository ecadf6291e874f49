// Package io implements the coordinator-local lock ledger described in
// SPEC_FULL.md §4.10: a crash-recovery aid, not a data WAL (spec.md's
// Non-goals exclude durability/WAL for committed data). Adapted from the
// teacher's pkg/io.Logger (a per-process CSV write-ahead log of 2PC
// transaction states, fsynced on every write) into a log of lock
// *intents* only, never enough to replay committed values. Silo and Scar
// record grants and releases of locks on locally-mastered records; no
// caller records LockRequested, and locks requested from a remote master
// are not recorded.
package io

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LockPhase is one step of a tracked lock's lifecycle.
type LockPhase int

const (
	LockRequested LockPhase = iota
	LockGranted
	LockReleased
)

func (p LockPhase) String() string {
	switch p {
	case LockRequested:
		return "REQUESTED"
	case LockGranted:
		return "GRANTED"
	case LockReleased:
		return "RELEASED"
	default:
		return "UNKNOWN"
	}
}

func parseLockPhase(s string) LockPhase {
	switch s {
	case "REQUESTED":
		return LockRequested
	case "GRANTED":
		return LockGranted
	default:
		return LockReleased
	}
}

// LockIntent is one ledger entry: transaction txnID asked for, was
// granted, or released the lock on (tableID, partitionID, key).
type LockIntent struct {
	TxnID       uint64
	TableID     uint32
	PartitionID uint32
	Key         string
	Phase       LockPhase
}

// LockLedger is a coordinator-local, append-only CSV log of lock intents,
// fsynced on every write the way the teacher's Logger fsyncs every record
// -- this is the one place this module pays a durability cost, and only
// for restart robustness, never for correctness of a running cluster.
type LockLedger struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
}

// OpenLockLedger opens (creating if necessary) the ledger file at path.
func OpenLockLedger(path string) (*LockLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("io: lock ledger mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("io: lock ledger open: %w", err)
	}
	return &LockLedger{path: path, file: f, writer: csv.NewWriter(f)}, nil
}

// Record appends one lock-intent entry and fsyncs before returning, so a
// crash immediately after Record cannot lose the intent.
func (l *LockLedger) Record(in LockIntent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := []string{
		fmt.Sprintf("%d", in.TxnID),
		fmt.Sprintf("%d", in.TableID),
		fmt.Sprintf("%d", in.PartitionID),
		in.Key,
		in.Phase.String(),
	}
	if err := l.writer.Write(record); err != nil {
		return err
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return err
	}
	return l.file.Sync()
}

// InDoubt replays the ledger and returns every (tableID, partitionID, key)
// whose most recent entry is LockRequested or LockGranted without a
// matching LockReleased -- locks on this coordinator's own records that a
// crash may have left held.
func (l *LockLedger) InDoubt() ([]LockIntent, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	type key struct {
		table, partition uint32
		k                string
	}
	latest := make(map[key]LockIntent)
	for _, rec := range records {
		if len(rec) != 5 {
			continue
		}
		var in LockIntent
		fmt.Sscanf(rec[0], "%d", &in.TxnID)
		fmt.Sscanf(rec[1], "%d", &in.TableID)
		fmt.Sscanf(rec[2], "%d", &in.PartitionID)
		in.Key = rec[3]
		in.Phase = parseLockPhase(rec[4])
		latest[key{in.TableID, in.PartitionID, in.Key}] = in
	}

	var pending []LockIntent
	for _, in := range latest {
		if in.Phase != LockReleased {
			pending = append(pending, in)
		}
	}
	return pending, nil
}

// Close closes the underlying file.
func (l *LockLedger) Close() error {
	return l.file.Close()
}
