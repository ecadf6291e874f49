package coordinator

import (
	"context"
	"sync"

	"scar/pkg/protocol/aria"
	"scar/pkg/txn"
)

// runAriaEpochs drives Aria's epoch-batch execution model (spec.md §4.4.5)
// for this node's workers: each epoch runs in three stages, each ending in a
// barrier across this node's workers -- execute, reserve, check-conflicts-and-commit -- so that no
// worker's CheckConflicts ever races a sibling's still-in-flight Reserve
// for the same epoch. This replaces executor.Worker.Run's generic
// single-transaction retry loop for aria, since Aria's serializability
// comes from the whole-epoch barrier rather than per-transaction
// validation; Run is never started for this protocol (see Node.Start).
func (n *Node) runAriaEpochs(ctx context.Context, a *aria.Aria, epochs, batchSize int) {
	for epoch := 0; epoch < epochs; epoch++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batches := make([][]*txn.Transaction, len(n.workers))

		var wg sync.WaitGroup
		wg.Add(len(n.workers))
		for wi, w := range n.workers {
			wi, w := wi, w
			go func() {
				defer wg.Done()
				batch := make([]*txn.Transaction, 0, batchSize)
				for i := 0; i < batchSize; i++ {
					t := w.NextForEpoch(uint32(epoch), wi*batchSize+i)
					if t.Execute() != txn.ReadyToCommit {
						w.Counters.AbortNoRetry++
						continue
					}
					batch = append(batch, t)
				}
				batches[wi] = batch
			}()
		}
		wg.Wait()

		wg.Add(len(n.workers))
		for wi := range n.workers {
			wi := wi
			go func() {
				defer wg.Done()
				for _, t := range batches[wi] {
					a.Reserve(t)
				}
			}()
		}
		wg.Wait()

		wg.Add(len(n.workers))
		for wi, w := range n.workers {
			wi, w := wi, w
			go func() {
				defer wg.Done()
				for _, t := range batches[wi] {
					a.CheckConflicts(t)
					if a.Commit(t, w.Outbound) {
						w.Counters.Commit++
					} else {
						w.Counters.AbortNoRetry++
					}
				}
				w.FlushMessages()
			}()
		}
		wg.Wait()

		a.Reservations().Reset()
	}
}
