package scar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scar/pkg/message"
	"scar/pkg/partition"
	"scar/pkg/protocol/scar"
	"scar/pkg/rwkey"
	"scar/pkg/table"
	"scar/pkg/txn"
)

const tableID = 0

func newSingleNodeScar(t *testing.T) (*scar.Scar, *table.Database) {
	t.Helper()
	db := table.NewDatabase()
	db.CreateTable(tableID, 0, 8)
	p := partition.NewHashReplicated(0, 1, 1)
	return scar.New(db, p, 0), db
}

func outboundFor(n int) []*message.Message {
	out := make([]*message.Message, n)
	for i := range out {
		out[i] = message.New(0, i, 0)
	}
	return out
}

// TestScarRtsExtension mirrors spec.md §8 scenario S4: k has wts=5, rts=5.
// The transaction reads k and writes a second record w (wts=rts=7), so
// commit_wts = max(5, 7+1) = 8; validating k with commit_wts=8 must
// succeed and extend k's rts to 8 while leaving wts at 5.
func TestScarRtsExtension(t *testing.T) {
	s, db := newSingleNodeScar(t)
	tbl := db.FindTable(tableID, 0)
	tbl.Seed([]byte("k"), []byte("v"), 5)
	tbl.Seed([]byte("w"), []byte("v"), 7)

	tr := txn.New(0, 0, 1, nil)
	tr.ReadSet = append(tr.ReadSet, rwkey.New(tableID, 0, []byte("k")))
	tr.ReadSet[0].SetTid(tbl.SearchMetadata([]byte("k")).Raw())
	tr.WriteSet = append(tr.WriteSet, rwkey.New(tableID, 0, []byte("w")))
	tr.WriteSet[0].SetValue([]byte("v2"))
	tr.MessageFlusher = func() {}

	ok := s.Commit(tr, outboundFor(1))
	require.True(t, ok)
	assert.Equal(t, uint64(5), tbl.SearchMetadata([]byte("k")).GetWts())
	assert.Equal(t, uint64(8), tbl.SearchMetadata([]byte("k")).GetRts())
}

// TestScarBlindWriteAbort: a write-set key was also read earlier, but was
// committed by someone else between the read and this transaction's lock
// attempt, bumping its wts. Scar's anti-phantom check in the lock step must
// catch this even though the lock itself succeeds.
func TestScarBlindWriteAbort(t *testing.T) {
	s, db := newSingleNodeScar(t)
	tbl := db.FindTable(tableID, 0)
	tbl.Seed([]byte("k"), []byte("v1"), 0)

	tr := txn.New(0, 0, 1, nil)
	tr.ReadSet = append(tr.ReadSet, rwkey.New(tableID, 0, []byte("k")))
	tr.ReadSet[0].SetTid(tbl.SearchMetadata([]byte("k")).Raw())
	tr.WriteSet = append(tr.WriteSet, rwkey.New(tableID, 0, []byte("k")))
	tr.WriteSet[0].SetValue([]byte("v2"))
	tr.MessageFlusher = func() {}

	// Concurrent writer commits in between, bumping wts past what tr saw.
	tbl.SearchMetadata([]byte("k")).Lock()
	tbl.SearchMetadata([]byte("k")).UnlockWithCommit(9)

	ok := s.Commit(tr, outboundFor(1))
	assert.False(t, ok)
	assert.True(t, tr.AbortLock)
}
