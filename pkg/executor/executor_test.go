package executor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"scar/pkg/executor"
	"scar/pkg/message"
	"scar/pkg/partition"
	"scar/pkg/protocol/silo"
	"scar/pkg/random"
	"scar/pkg/table"
	"scar/pkg/transport"
	"scar/pkg/workload"
)

const tableID = 0

func newWorker(db *table.Database, p partition.Partitioner, wl *workload.YCSB) *executor.Worker {
	w := &executor.Worker{
		CoordinatorID: 0,
		ID:            0,
		PartitionID:   0,
		BatchFlush:    4,
		DB:            db,
		Protocol:      silo.New(db, p, 0),
		Handlers:      silo.MessageHandlers(),
		Workload:      wl,
		Random:        random.New(1),
		Outbound:      executor.NewOutbound(0, 0, 1),
		Inbound:       transport.NewQueue(16),
	}
	w.Send = func(m *message.Message) {}
	return w
}

func TestWorkerRunCommitsSingleCoordinatorWorkload(t *testing.T) {
	db := table.NewDatabase()
	db.CreateTable(tableID, 0, 16)

	p := partition.NewHashReplicated(0, 1, 1)
	wl := workload.New(db, tableID, workload.Config{KeyCount: 8, OperationCount: 2, ReadRatio: 0.5})
	wl.SeedKeys(0)

	w := newWorker(db, p, wl)
	w.Run(context.Background(), 20)

	assert.Greater(t, w.Counters.Commit, uint64(0))
	assert.Equal(t, uint64(20), w.Counters.Commit+w.Counters.AbortNoRetry)
}
