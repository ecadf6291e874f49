package coordinator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scar/pkg/config"
	"scar/pkg/coordinator"
	"scar/pkg/logging"
	"scar/pkg/transport"
	"scar/pkg/workload"
)

const tableID = 0

func TestNodeRunsSingleCoordinatorWorkload(t *testing.T) {
	cfg := config.Default()
	cfg.Threads = 2
	cfg.Partitions = 1

	lb := transport.NewLoopback(1, 16)
	tp := coordinator.NewLoopbackTransport(lb, 0)

	n, err := coordinator.New(cfg, logging.Nop(), tp, tableID)
	require.NoError(t, err)

	wl := workload.New(n.Database(), tableID, workload.Config{KeyCount: 8, OperationCount: 2, ReadRatio: 0.5})
	wl.SeedKeys(0)
	n.SetWorkload(wl)

	n.Start(10)
	time.Sleep(100 * time.Millisecond)
	n.Stop()

	var commits uint64
	for _, w := range n.Workers() {
		commits += w.Counters.Commit
	}
	assert.Greater(t, commits, uint64(0))
}

func TestNodeRunsAriaEpochs(t *testing.T) {
	cfg := config.Default()
	cfg.Protocol = "aria"
	cfg.Threads = 2
	cfg.Partitions = 1
	cfg.AriaBatchSize = 4

	lb := transport.NewLoopback(1, 16)
	tp := coordinator.NewLoopbackTransport(lb, 0)

	n, err := coordinator.New(cfg, logging.Nop(), tp, tableID)
	require.NoError(t, err)

	wl := workload.New(n.Database(), tableID, workload.Config{KeyCount: 4, OperationCount: 2, ReadRatio: 0.5})
	wl.SeedKeys(0)
	n.SetWorkload(wl)

	// queryCount/AriaBatchSize epochs, each epoch running every worker
	// through execute/reserve/check-conflicts/commit -- enough rounds for
	// the shared reservation table to see a real WAW/WAR conflict between
	// the two workers' batches given the narrow 4-key keyspace.
	n.Start(32)
	time.Sleep(150 * time.Millisecond)
	n.Stop()

	var commits uint64
	for _, w := range n.Workers() {
		commits += w.Counters.Commit
	}
	assert.Greater(t, commits, uint64(0))
}

func TestNodeRunsRStorePhases(t *testing.T) {
	cfg := config.Default()
	cfg.Protocol = "rstore"
	cfg.Threads = 2
	cfg.Partitions = 1
	cfg.PhaseBatchSize = 4

	lb := transport.NewLoopback(1, 16)
	tp := coordinator.NewLoopbackTransport(lb, 0)

	n, err := coordinator.New(cfg, logging.Nop(), tp, tableID)
	require.NoError(t, err)

	wl := workload.New(n.Database(), tableID, workload.Config{KeyCount: 8, OperationCount: 2, ReadRatio: 0.5})
	wl.SeedKeys(0)
	n.SetWorkload(wl)

	// queryCount/(2*PhaseBatchSize) cycles through C_PHASE -> STOP ->
	// S_PHASE -> STOP, exercising phase.Coordinator's real barrier rather
	// than only pkg/phase's own isolated test.
	n.Start(32)
	time.Sleep(150 * time.Millisecond)
	n.Stop()

	var commits uint64
	for _, w := range n.Workers() {
		commits += w.Counters.Commit
	}
	assert.Greater(t, commits, uint64(0))
}

func TestNewRejectsUnknownProtocol(t *testing.T) {
	cfg := config.Default()
	cfg.Protocol = "bogus"
	lb := transport.NewLoopback(1, 16)
	tp := coordinator.NewLoopbackTransport(lb, 0)
	_, err := coordinator.New(cfg, logging.Nop(), tp, tableID)
	assert.Error(t, err)
}
