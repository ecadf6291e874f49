package rstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scar/pkg/message"
	"scar/pkg/partition"
	"scar/pkg/protocol/rstore"
	"scar/pkg/rwkey"
	"scar/pkg/table"
	"scar/pkg/txn"
)

const tableID = 0

func TestRStoreSPhaseCommitIsLocalOnly(t *testing.T) {
	db := table.NewDatabase()
	db.CreateTable(tableID, 0, 8)
	db.FindTable(tableID, 0).Seed([]byte("k"), []byte("v1"), 0)

	p := partition.NewSPartitioner(0, 1)
	r := rstore.New(db, p, 0)

	tr := txn.New(0, 0, 1, nil)
	tr.MessageFlusher = func() {}
	wk := rwkey.New(tableID, 0, []byte("k"))
	wk.SetValue([]byte("v2"))
	tr.WriteSet = append(tr.WriteSet, wk)

	out := []*message.Message{message.New(0, 0, 0)}
	ok := r.Commit(tr, out)
	require.True(t, ok)
	assert.Equal(t, "v2", string(db.FindTable(tableID, 0).Search([]byte("k"))))
	assert.Zero(t, out[0].Count())
}

func TestRStoreCPhaseReplicatesToEveryCoordinator(t *testing.T) {
	db := table.NewDatabase()
	db.CreateTable(tableID, 0, 8)
	db.FindTable(tableID, 0).Seed([]byte("k"), []byte("v1"), 0)

	p := partition.NewCPartitioner(0, 3)
	r := rstore.New(db, p, 0)

	tr := txn.New(0, 0, 1, nil)
	tr.MessageFlusher = func() {}
	wk := rwkey.New(tableID, 0, []byte("k"))
	wk.SetValue([]byte("v2"))
	tr.WriteSet = append(tr.WriteSet, wk)

	out := []*message.Message{message.New(0, 0, 0), message.New(0, 1, 0), message.New(0, 2, 0)}
	ok := r.Commit(tr, out)
	require.True(t, ok)
	assert.Equal(t, 1, out[1].Count())
	assert.Equal(t, 1, out[2].Count())
}
