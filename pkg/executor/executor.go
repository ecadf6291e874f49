// Package executor implements the worker main loop of spec.md §4.5,
// grounded on original_source/core/Executor.h: drain inbound messages,
// execute (or retry) a transaction against a bound protocol, flush
// outbound messages in batches, and track per-worker commit/abort counters.
// One Worker runs on its own goroutine, started by pkg/coordinator.
package executor

import (
	"context"
	"strconv"
	"time"

	"scar/pkg/message"
	"scar/pkg/metrics"
	"scar/pkg/protocol"
	"scar/pkg/random"
	"scar/pkg/table"
	"scar/pkg/transport"
	"scar/pkg/txn"
	"scar/pkg/workload"
)

// Counters tallies the per-worker outcomes spec.md §4.5 and §9 name:
// n_commit, n_abort_lock, n_abort_read_validation, n_abort_no_retry.
type Counters struct {
	Commit              uint64
	AbortLock           uint64
	AbortReadValidation uint64
	AbortNoRetry        uint64
}

// Workload is the subset of workload.YCSB (or any future generator) the
// executor depends on, kept narrow so tests can supply a stub.
type Workload interface {
	NextTransaction(coordinatorID int, partitionID uint32, id uint64, rnd *random.Source) *txn.Transaction
}

var _ Workload = (*workload.YCSB)(nil)

// Worker runs one execution thread's worth of transactions against protocol
// for partitionID, using workload to generate new queries.
type Worker struct {
	CoordinatorID int
	ID            int
	PartitionID   uint32
	BatchFlush    int
	// ProtocolName labels metrics.Transactions/CommitLatency ("silo",
	// "scar", "twopl", "rstore", "aria"); empty disables metric export.
	ProtocolName string

	DB       *table.Database
	Protocol protocol.Protocol
	Handlers protocol.HandlerTable
	Workload Workload
	Random   *random.Source

	// Outbound holds one Message per peer coordinator, reinitialized after
	// each flush (original_source's init_message).
	Outbound []*message.Message
	// Send delivers one flushed, non-empty Message to its Header.DestNode.
	Send func(*message.Message)
	// Inbound is this worker's own private queue -- pkg/coordinator routes
	// messages addressed to this worker's id here, never to a sibling's.
	Inbound *transport.Queue

	Counters Counters

	nextID uint64
}

// NewOutbound allocates one empty outbound Message per peer coordinator.
func NewOutbound(coordinatorID, workerID, peerCount int) []*message.Message {
	out := make([]*message.Message, peerCount)
	for i := range out {
		out[i] = message.New(coordinatorID, i, workerID)
	}
	return out
}

// Run drives the main loop for up to queryCount queries, returning early
// if ctx is cancelled, matching spec.md §4.5's `while not stopFlag`.
func (w *Worker) Run(ctx context.Context, queryCount int) {
	for i := 0; i < queryCount; i++ {
		select {
		case <-ctx.Done():
			w.flushMessages()
			return
		default:
		}

		w.RunOne()

		if w.BatchFlush > 0 && i%w.BatchFlush == 0 {
			w.flushMessages()
		}
	}
	w.flushMessages()
}

// RunOne executes exactly one transaction to completion, retrying through
// abort/seed-replay until it commits or aborts with AbortNoRetry -- the
// per-query body of spec.md §4.5's loop. Exposed separately from Run so a
// protocol whose serializability comes from an external barrier rather than
// per-query retry (Aria's epoch reserve/check, R-Store's phase cycle) can
// drive a worker's workload under its own control flow instead of Run's own
// queryCount loop.
func (w *Worker) RunOne() {
	coordLabel := strconv.Itoa(w.CoordinatorID)
	workerLabel := strconv.Itoa(w.ID)

	var t *txn.Transaction
	var savedSeed uint64
	retry := false
	started := time.Now()

	for {
		w.processRequests(t)
		if w.ProtocolName != "" {
			metrics.PendingResponses.WithLabelValues(coordLabel, workerLabel).Set(0)
		}

		if retry {
			t.Reset()
		} else {
			savedSeed = w.Random.Seed()
			w.nextID++
			t = w.Workload.NextTransaction(w.CoordinatorID, w.PartitionID, w.nextID, w.Random)
			w.bindHandlers(t)
		}

		result := t.Execute()
		if w.ProtocolName != "" {
			metrics.PendingResponses.WithLabelValues(coordLabel, workerLabel).Set(float64(t.PendingResponses))
		}
		if result != txn.ReadyToCommit {
			w.Counters.AbortNoRetry++
			w.observe(coordLabel, "abort_no_retry")
			return
		}

		if w.Protocol.Commit(t, w.Outbound) {
			w.Counters.Commit++
			w.observe(coordLabel, "commit")
			if w.ProtocolName != "" {
				metrics.CommitLatency.WithLabelValues(coordLabel, w.ProtocolName).Observe(time.Since(started).Seconds())
			}
			return
		}

		if t.AbortLock {
			w.Counters.AbortLock++
			w.observe(coordLabel, "abort_lock")
		} else {
			w.Counters.AbortReadValidation++
			w.observe(coordLabel, "abort_read_validation")
		}
		w.Random.SetSeed(savedSeed)
		retry = true
	}
}

// NextForEpoch generates and binds a fresh transaction stamped with epoch
// and tidOffset for Aria's epoch-batch model (spec.md §4.4.5). Aria never
// retries a transaction in place the way RunOne does -- a conflict is
// resolved once by CheckConflicts after the whole epoch has reserved, not
// by an immediate local seed-replay -- so this bypasses RunOne's retry loop
// entirely and leaves commit/fallback to the caller.
func (w *Worker) NextForEpoch(epoch uint32, tidOffset int) *txn.Transaction {
	w.nextID++
	t := w.Workload.NextTransaction(w.CoordinatorID, w.PartitionID, w.nextID, w.Random)
	t.Epoch = epoch
	t.TidOffset = tidOffset
	w.bindHandlers(t)
	return t
}

// FlushMessages sends every non-empty outbound message. Exposed for
// protocols whose driver controls the flush cadence itself instead of
// Run's own BatchFlush interval.
func (w *Worker) FlushMessages() {
	w.flushMessages()
}

func (w *Worker) observe(coordLabel, outcome string) {
	if w.ProtocolName == "" {
		return
	}
	metrics.Transactions.WithLabelValues(coordLabel, w.ProtocolName, outcome).Inc()
}

// bindHandlers wires ReadRequestHandler/RemoteRequestHandler/MessageFlusher
// into t, matching original_source's setupHandlers: reads go through the
// protocol's BindReadHandler, which for Silo and Scar is a local Search for
// a local-master key or a SEARCH_REQ round trip for a remote one, for 2PL a
// LOCK_REQ, and for Aria and R-Store always a local read.
func (w *Worker) bindHandlers(t *txn.Transaction) {
	t.ReadRequestHandler = w.Protocol.BindReadHandler(t, w.Outbound)
	t.RemoteRequestHandler = func() int {
		return w.processRequests(t)
	}
	t.MessageFlusher = w.flushMessages
}

// processRequests drains this worker's inbound queue, dispatching each
// piece through Handlers and writing any reply into the outbound message
// addressed back to the piece's source. t receives response patches
// (LockResponse/ReadValidationResponse/...) when non-nil; it is nil only
// during the idle poll at the top of the loop, before any transaction is
// in flight.
func (w *Worker) processRequests(t *txn.Transaction) int {
	processed := 0
	for {
		m, ok := w.Inbound.Pop()
		if !ok {
			break
		}
		reply := message.New(w.CoordinatorID, m.Header.SourceNode, w.ID)
		for _, p := range m.Pieces() {
			h := w.Handlers[p.Type]
			if h == nil {
				continue
			}
			tbl := w.DB.FindTable(p.TableID, p.PartitionID)
			h(p, reply, tbl, t)
		}
		if reply.Count() > 0 {
			w.Send(reply)
		}
		processed++
	}
	return processed
}

// flushMessages sends every non-empty outbound message and reinitializes
// its slot, mirroring original_source's flush_messages.
func (w *Worker) flushMessages() {
	for i := range w.Outbound {
		if i == w.CoordinatorID || w.Outbound[i].Count() == 0 {
			continue
		}
		w.Send(w.Outbound[i])
		w.Outbound[i] = message.New(w.CoordinatorID, i, w.ID)
	}
}
