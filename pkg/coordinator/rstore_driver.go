package coordinator

import (
	"context"
	"sync"

	"scar/pkg/partition"
	"scar/pkg/phase"
	"scar/pkg/protocol/rstore"
)

// runRStorePhases drives R-Store's C-phase/S-phase cycle (spec.md §4.4.4,
// §4.6) for this node's workers using n.phase as the shared barrier: every
// cycle, C-phase runs with the CPartitioner active and work generated only
// by coordinator 0 (every other coordinator's workers idle through the
// phase, matching original_source's coordinator_id == 0 guard on C-phase
// generation), then S-phase runs with the SPartitioner active and every
// coordinator's workers generating work. This replaces
// executor.Worker.Run for rstore; Run is never started for this protocol
// (see Node.Start).
//
// Cross-node lockstep -- every coordinator in the cluster entering S-phase
// at the same moment -- is not enforced by a wire-level barrier here; see
// DESIGN.md's Open Question on this.
func (n *Node) runRStorePhases(ctx context.Context, r *rstore.RStore, cPart *partition.CPartitioner, sPart *partition.SPartitioner, cycles, batchPerPhase int) {
	isCoordinatorZero := n.cfg.CoordinatorID == 0

	for cycle := 0; cycle < cycles; cycle++ {
		select {
		case <-ctx.Done():
			n.phase.BeginExit()
			return
		default:
		}

		r.SetPartitioner(cPart)
		n.phase.BeginCPhase()
		n.runPhase(n.phase, isCoordinatorZero, batchPerPhase)
		n.phase.StopAndAwaitComplete()

		r.SetPartitioner(sPart)
		n.phase.BeginSPhase()
		n.runPhase(n.phase, true, batchPerPhase)
		n.phase.StopAndAwaitComplete()
	}

	n.phase.BeginExit()
}

// runPhase runs batchPerPhase transactions on every worker if participate
// is true, or simply marks each worker started-and-completed without
// generating work if it is false (coordinator_id != 0 during C-phase).
// Every worker's WorkerStarted/WorkerCompleted call is unconditional so
// StopAndAwaitComplete's barrier count always reaches workerCount.
func (n *Node) runPhase(ph *phase.Coordinator, participate bool, batch int) {
	var wg sync.WaitGroup
	wg.Add(len(n.workers))
	for _, w := range n.workers {
		w := w
		go func() {
			defer wg.Done()
			ph.WorkerStarted()
			if participate {
				for i := 0; i < batch; i++ {
					w.RunOne()
				}
				w.FlushMessages()
			}
			ph.WorkerCompleted()
		}()
	}
	wg.Wait()
}
