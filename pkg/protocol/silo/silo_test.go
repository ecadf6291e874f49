package silo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scar/pkg/message"
	"scar/pkg/partition"
	"scar/pkg/protocol/silo"
	"scar/pkg/rwkey"
	"scar/pkg/table"
	"scar/pkg/tid"
	"scar/pkg/txn"
)

const tableID = 0

func newSingleNodeSilo(t *testing.T) (*silo.Silo, *table.Database) {
	t.Helper()
	db := table.NewDatabase()
	db.CreateTable(tableID, 0, 8)
	p := partition.NewHashReplicated(0, 1, 1)
	return silo.New(db, p, 0), db
}

func outboundFor(n int) []*message.Message {
	out := make([]*message.Message, n)
	for i := range out {
		out[i] = message.New(0, i, 0)
	}
	return out
}

func TestSiloCommitWriteThenRead(t *testing.T) {
	s, db := newSingleNodeSilo(t)
	db.FindTable(tableID, 0).Seed([]byte("k1"), []byte("v1"), 0)

	tr := txn.New(0, 0, 1, nil)
	tr.ReadSet = append(tr.ReadSet, rwkey.New(tableID, 0, []byte("k1")))
	tr.ReadSet[0].SetTid(db.FindTable(tableID, 0).SearchMetadata([]byte("k1")).Raw())
	tr.WriteSet = append(tr.WriteSet, rwkey.New(tableID, 0, []byte("k1")))
	tr.WriteSet[0].SetValue([]byte("v2"))
	tr.MessageFlusher = func() {}

	ok := s.Commit(tr, outboundFor(1))
	require.True(t, ok)
	assert.Equal(t, "v2", string(db.FindTable(tableID, 0).Search([]byte("k1"))))
	assert.False(t, db.FindTable(tableID, 0).SearchMetadata([]byte("k1")).IsLocked())
}

func TestSiloAbortsOnStaleRead(t *testing.T) {
	s, db := newSingleNodeSilo(t)
	tbl := db.FindTable(tableID, 0)
	tbl.Seed([]byte("k1"), []byte("v1"), 0)

	tr := txn.New(0, 0, 1, nil)
	tr.ReadSet = append(tr.ReadSet, rwkey.New(tableID, 0, []byte("k1")))
	tr.ReadSet[0].SetTid(tbl.SearchMetadata([]byte("k1")).Raw())
	tr.MessageFlusher = func() {}

	// Another transaction commits in between, bumping the record's wts past
	// what tr observed at read time.
	tbl.SearchMetadata([]byte("k1")).Lock()
	tbl.SearchMetadata([]byte("k1")).UnlockWithCommit(5)

	ok := s.Commit(tr, outboundFor(1))
	assert.False(t, ok)
	assert.True(t, tr.AbortReadValidation)
}

// TestSiloRemoteSearchRoundTrip exercises spec.md §4.3's remote read path:
// a read on a partition this coordinator does not master sends SEARCH_REQ
// instead of reading locally, and the reply patches the read-set entry
// once it arrives.
func TestSiloRemoteSearchRoundTrip(t *testing.T) {
	db0 := table.NewDatabase()
	db0.CreateTable(tableID, 0, 4)
	db1 := table.NewDatabase()
	db1.CreateTable(tableID, 1, 4)
	db1.FindTable(tableID, 1).Seed([]byte("k2"), []byte("remote-v"), 3)

	p0 := partition.NewHashReplicated(0, 2, 1)
	s0 := silo.New(db0, p0, 0)

	tr := txn.New(0, 0, 1, nil)
	tr.ReadSet = append(tr.ReadSet, rwkey.New(tableID, 1, []byte("k2")))

	outbound := outboundFor(2)
	readHandler := s0.BindReadHandler(tr, outbound)

	got := readHandler(tableID, 1, 0, []byte("k2"), make([]byte, 0), false)
	assert.Equal(t, uint64(0), got)
	assert.Equal(t, 1, tr.PendingResponses)
	require.Equal(t, 1, outbound[1].Count())
	assert.Equal(t, message.SearchRequest, outbound[1].Pieces()[0].Type)

	// Coordinator 1 answers the SEARCH_REQ against its own table.
	reply := message.New(1, 0, 0)
	silo.MessageHandlers()[message.SearchRequest](outbound[1].Pieces()[0], reply, db1.FindTable(tableID, 1), nil)
	require.Equal(t, 1, reply.Count())

	// Coordinator 0 applies the SEARCH_RSP, patching the read set and
	// draining PendingResponses.
	silo.MessageHandlers()[message.SearchResponse](reply.Pieces()[0], message.New(0, 1, 0), db0.FindTable(tableID, 0), tr)

	assert.Equal(t, 0, tr.PendingResponses)
	assert.Equal(t, "remote-v", string(tr.ReadSet[0].Value))
	assert.Equal(t, uint64(3), tid.GetWts(tr.ReadSet[0].Tid))
}

func TestSiloAbortsOnLockConflict(t *testing.T) {
	s, db := newSingleNodeSilo(t)
	tbl := db.FindTable(tableID, 0)
	tbl.Seed([]byte("k1"), []byte("v1"), 0)
	tbl.SearchMetadata([]byte("k1")).Lock() // held by some other in-flight txn

	tr := txn.New(0, 0, 1, nil)
	tr.WriteSet = append(tr.WriteSet, rwkey.New(tableID, 0, []byte("k1")))
	tr.WriteSet[0].SetValue([]byte("v2"))
	tr.MessageFlusher = func() {}

	ok := s.Commit(tr, outboundFor(1))
	assert.False(t, ok)
	assert.True(t, tr.AbortLock)
}
