// Package coordinator assembles one cluster member: its table database, its
// chosen commit protocol, its transport, and the pool of executor.Worker
// goroutines that drive it. Grounded on the teacher's master/replica process
// wiring (pkg/master/master_api.go, pkg/replica/replica_api.go), generalized
// from the teacher's fixed master+replica roles to N symmetric coordinators
// each running the same protocol.
package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"scar/pkg/config"
	"scar/pkg/executor"
	"scar/pkg/io"
	"scar/pkg/message"
	"scar/pkg/partition"
	"scar/pkg/phase"
	"scar/pkg/protocol"
	"scar/pkg/protocol/aria"
	"scar/pkg/protocol/rstore"
	"scar/pkg/protocol/scar"
	"scar/pkg/protocol/silo"
	"scar/pkg/protocol/twopl"
	"scar/pkg/random"
	"scar/pkg/table"
	"scar/pkg/transport"
)

// wireTransport is the narrow send/receive contract coordinator.Node needs;
// transport.Loopback and transport.TCP both satisfy it.
type wireTransport interface {
	Send(m *message.Message) error
	Inbound() *transport.Queue
}

// loopbackAdapter lets transport.Loopback (whose Send has no error return
// and whose Inbound takes a coordinator id) satisfy wireTransport.
type loopbackAdapter struct {
	lb  *transport.Loopback
	who int
}

func (a loopbackAdapter) Send(m *message.Message) error {
	a.lb.Send(m)
	return nil
}

func (a loopbackAdapter) Inbound() *transport.Queue {
	return a.lb.Inbound(a.who)
}

// NewLoopbackTransport wraps a shared Loopback for coordinator id.
func NewLoopbackTransport(lb *transport.Loopback, coordinatorID int) wireTransport {
	return loopbackAdapter{lb: lb, who: coordinatorID}
}

// Node owns one coordinator's table, protocol, transport, and workers.
type Node struct {
	cfg       *config.Config
	log       *zap.SugaredLogger
	db        *table.Database
	tp        wireTransport
	proto     protocol.Protocol
	handlers  protocol.HandlerTable
	workers   []*executor.Worker
	perWorker []*transport.Queue
	ledger    *io.LockLedger

	// phase, rstoreCPart, rstoreSPart are only populated when
	// cfg.Protocol == "rstore"; see runRStorePhases.
	phase       *phase.Coordinator
	rstoreCPart *partition.CPartitioner
	rstoreSPart *partition.SPartitioner

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Node for tableID over partitions [0, cfg.Partitions), wiring
// the protocol named by cfg.Protocol and routing tp's per-coordinator
// inbound stream out to each worker's own private queue by
// message.Header.WorkerID -- the demultiplexing step original_source's
// single-threaded per-worker in_queue needs no equivalent for, since here
// many worker goroutines share one coordinator-level socket.
func New(cfg *config.Config, log *zap.SugaredLogger, tp wireTransport, tableID uint32) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db := table.NewDatabase()
	for pid := 0; pid < cfg.Partitions; pid++ {
		db.CreateTable(tableID, uint32(pid), 100)
	}

	// R-Store alternates between a CPartitioner and an SPartitioner per
	// phase (spec.md §4.4.4/§4.6); every other protocol uses the fixed
	// HashReplicated mapping.
	var part partition.Partitioner
	var cPart *partition.CPartitioner
	var sPart *partition.SPartitioner
	if cfg.Protocol == "rstore" {
		cPart = partition.NewCPartitioner(cfg.CoordinatorID, len(cfg.Servers))
		sPart = partition.NewSPartitioner(cfg.CoordinatorID, len(cfg.Servers))
		part = cPart
	} else {
		part = partition.NewHashReplicated(cfg.CoordinatorID, len(cfg.Servers), cfg.ReplicaFactor)
	}

	proto, handlers, err := buildProtocol(cfg, db, part)
	if err != nil {
		return nil, err
	}

	n := &Node{cfg: cfg, log: log, db: db, tp: tp, proto: proto, handlers: handlers}
	if cfg.Protocol == "rstore" {
		n.phase = phase.New(uint32(cfg.Threads))
		n.rstoreCPart = cPart
		n.rstoreSPart = sPart
	}

	if cfg.LockLedgerDir != "" {
		path := filepath.Join(cfg.LockLedgerDir, fmt.Sprintf("coordinator-%d.log", cfg.CoordinatorID))
		ledger, err := io.OpenLockLedger(path)
		if err != nil {
			return nil, err
		}
		n.ledger = ledger
		switch p := proto.(type) {
		case *silo.Silo:
			p.Ledger = ledger
		case *scar.Scar:
			p.Ledger = ledger
		}
		if pending, err := ledger.InDoubt(); err != nil {
			log.Warnw("lock ledger replay failed", "err", err)
		} else if len(pending) > 0 {
			log.Warnw("found in-doubt locks from a previous run", "count", len(pending))
		}
	}

	n.perWorker = make([]*transport.Queue, cfg.Threads)
	for i := range n.perWorker {
		n.perWorker[i] = transport.NewQueue(cfg.InboundQueueDepth)
	}

	n.workers = make([]*executor.Worker, cfg.Threads)
	for i := 0; i < cfg.Threads; i++ {
		partitionID := uint32(i % cfg.Partitions)
		n.workers[i] = &executor.Worker{
			CoordinatorID: cfg.CoordinatorID,
			ID:            i,
			PartitionID:   partitionID,
			BatchFlush:    cfg.BatchFlushSize,
			ProtocolName:  cfg.Protocol,
			DB:            db,
			Protocol:      proto,
			Handlers:      handlers,
			Random:        random.New(uint64(cfg.CoordinatorID*10007 + i + 1)),
			Outbound:      executor.NewOutbound(cfg.CoordinatorID, i, len(cfg.Servers)),
			Send: func(m *message.Message) {
				if err := tp.Send(m); err != nil {
					log.Warnw("send failed", "dest", m.Header.DestNode, "err", err)
				}
			},
			Inbound: n.perWorker[i],
		}
	}

	return n, nil
}

// SetWorkload binds a workload generator to every worker. Kept separate
// from New because the workload depends on the table having been seeded,
// which callers may want to do between New and Start.
func (n *Node) SetWorkload(wl executor.Workload) {
	for _, w := range n.workers {
		w.Workload = wl
	}
}

func (n *Node) Database() *table.Database { return n.db }
func (n *Node) Workers() []*executor.Worker { return n.workers }

// Start launches the inbound router and the worker(s) driving this node's
// protocol. queryCount bounds the amount of work run (per worker for the
// generic Run loop; translated into an epoch or phase-cycle count for
// aria/rstore below); a coordinator meant to run "forever" should pass a
// very large count and rely on ctx cancellation from Stop.
func (n *Node) Start(queryCount int) {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.route(ctx)
	}()

	switch p := n.proto.(type) {
	case *aria.Aria:
		batch := n.cfg.AriaBatchSize
		epochs := queryCount / batch
		if epochs < 1 {
			epochs = 1
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runAriaEpochs(ctx, p, epochs, batch)
		}()
	case *rstore.RStore:
		batch := n.cfg.PhaseBatchSize
		cycles := queryCount / (2 * batch)
		if cycles < 1 {
			cycles = 1
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runRStorePhases(ctx, p, n.rstoreCPart, n.rstoreSPart, cycles, batch)
		}()
	default:
		for _, w := range n.workers {
			w := w
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				w.Run(ctx, queryCount)
			}()
		}
	}
}

// Stop cancels every worker and the router and waits for them to return.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
	if n.ledger != nil {
		n.ledger.Close()
	}
}

// route drains tp's coordinator-wide inbound queue and redispatches each
// message to the private queue of the worker named by Header.WorkerID.
func (n *Node) route(ctx context.Context) {
	in := n.tp.Inbound()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-in.Chan():
			wid := m.Header.WorkerID
			if wid < 0 || wid >= len(n.perWorker) {
				n.log.Warnw("dropping message for unknown worker", "worker_id", wid)
				continue
			}
			n.perWorker[wid].Push(m)
		}
	}
}

func buildProtocol(cfg *config.Config, db *table.Database, part partition.Partitioner) (protocol.Protocol, protocol.HandlerTable, error) {
	switch cfg.Protocol {
	case "silo":
		return silo.New(db, part, cfg.CoordinatorID), silo.MessageHandlers(), nil
	case "scar":
		return scar.New(db, part, cfg.CoordinatorID), scar.MessageHandlers(), nil
	case "twopl":
		return twopl.New(db, part, cfg.CoordinatorID), twopl.MessageHandlers(), nil
	case "rstore":
		return rstore.New(db, part, cfg.CoordinatorID), rstore.MessageHandlers(), nil
	case "aria":
		return aria.New(db, part, cfg.CoordinatorID, 64), aria.MessageHandlers(), nil
	default:
		return nil, protocol.HandlerTable{}, fmt.Errorf("coordinator: unknown protocol %q", cfg.Protocol)
	}
}
