package workload_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scar/pkg/random"
	"scar/pkg/table"
	"scar/pkg/txn"
	"scar/pkg/workload"
)

const tableID = 0

func TestYCSBTransactionIsReplayableAfterReset(t *testing.T) {
	db := table.NewDatabase()
	db.CreateTable(tableID, 0, 16)
	y := workload.New(db, tableID, workload.Config{KeyCount: 10, OperationCount: 3, ReadRatio: 0.5})
	y.SeedKeys(0)

	rnd := random.New(42)
	tr := y.NextTransaction(0, 0, 1, rnd)

	reads := 0
	tr.ReadRequestHandler = func(tableID, partitionID uint32, keyOffset int, key, value []byte, localIndexRead bool) uint64 {
		reads++
		copy(value, db.FindTable(tableID, partitionID).Search(key))
		return db.FindTable(tableID, partitionID).SearchMetadata(key).Raw()
	}

	result := tr.Execute()
	require.Equal(t, txn.ReadyToCommit, result)
	firstReadSetLen := len(tr.ReadSet)
	firstWriteSetLen := len(tr.WriteSet)
	assert.Greater(t, reads, 0)

	tr.Reset()
	result = tr.Execute()
	require.Equal(t, txn.ReadyToCommit, result)
	assert.Equal(t, firstReadSetLen, len(tr.ReadSet))
	assert.Equal(t, firstWriteSetLen, len(tr.WriteSet))
}
