package io_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scar/pkg/io"
)

func TestLockLedgerInDoubtTracksUnreleasedLocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator-0.log")

	l, err := io.OpenLockLedger(path)
	require.NoError(t, err)

	require.NoError(t, l.Record(io.LockIntent{TxnID: 1, TableID: 0, PartitionID: 0, Key: "a", Phase: io.LockGranted}))
	require.NoError(t, l.Record(io.LockIntent{TxnID: 2, TableID: 0, PartitionID: 0, Key: "b", Phase: io.LockGranted}))
	require.NoError(t, l.Record(io.LockIntent{TxnID: 2, TableID: 0, PartitionID: 0, Key: "b", Phase: io.LockReleased}))
	require.NoError(t, l.Close())

	reopened, err := io.OpenLockLedger(path)
	require.NoError(t, err)
	defer reopened.Close()

	pending, err := reopened.InDoubt()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].Key)
	assert.Equal(t, uint64(1), pending[0].TxnID)
}

func TestLockLedgerInDoubtEmptyWhenMissing(t *testing.T) {
	l, err := io.OpenLockLedger(filepath.Join(t.TempDir(), "nested", "coordinator-1.log"))
	require.NoError(t, err)
	defer l.Close()

	pending, err := l.InDoubt()
	require.NoError(t, err)
	assert.Empty(t, pending)
}
