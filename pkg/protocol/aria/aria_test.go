package aria_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scar/pkg/message"
	"scar/pkg/partition"
	"scar/pkg/protocol/aria"
	"scar/pkg/rwkey"
	"scar/pkg/table"
	"scar/pkg/txn"
)

const tableID = 0

func newSingleNodeAria(t *testing.T) (*aria.Aria, *table.Database) {
	t.Helper()
	db := table.NewDatabase()
	db.CreateTable(tableID, 0, 8)
	p := partition.NewHashReplicated(0, 1, 1)
	return aria.New(db, p, 0, 4), db
}

func outboundFor(n int) []*message.Message {
	out := make([]*message.Message, n)
	for i := range out {
		out[i] = message.New(0, i, 0)
	}
	return out
}

func TestAriaNoConflictCommitsDirectly(t *testing.T) {
	a, db := newSingleNodeAria(t)
	tbl := db.FindTable(tableID, 0)
	tbl.Seed([]byte("k"), []byte("v1"), 0)

	tr := txn.New(0, 0, 1, nil)
	tr.TidOffset = 0
	tr.MessageFlusher = func() {}
	wk := rwkey.New(tableID, 0, []byte("k"))
	wk.SetValue([]byte("v2"))
	tr.WriteSet = append(tr.WriteSet, wk)

	a.Reserve(tr)
	a.CheckConflicts(tr)
	assert.False(t, tr.Waw)
	assert.False(t, tr.War)

	ok := a.Commit(tr, outboundFor(1))
	require.True(t, ok)
	assert.Equal(t, "v2", string(tbl.Search([]byte("k"))))
}

func TestAriaWawConflictGoesThroughFallback(t *testing.T) {
	a, db := newSingleNodeAria(t)
	tbl := db.FindTable(tableID, 0)
	tbl.Seed([]byte("k"), []byte("v1"), 0)

	winner := txn.New(0, 0, 1, nil)
	winner.TidOffset = 0
	wk := rwkey.New(tableID, 0, []byte("k"))
	wk.SetValue([]byte("from-winner"))
	winner.WriteSet = append(winner.WriteSet, wk)

	loser := txn.New(0, 0, 2, nil)
	loser.TidOffset = 1
	loser.MessageFlusher = func() {}
	wk2 := rwkey.New(tableID, 0, []byte("k"))
	wk2.SetValue([]byte("from-loser"))
	loser.WriteSet = append(loser.WriteSet, wk2)

	a.Reserve(winner)
	a.Reserve(loser)
	a.CheckConflicts(winner)
	a.CheckConflicts(loser)

	assert.False(t, winner.Waw)
	assert.True(t, loser.Waw)

	ok := a.Commit(loser, outboundFor(1))
	assert.True(t, ok)
	assert.Equal(t, "from-loser", string(tbl.Search([]byte("k"))))
}
