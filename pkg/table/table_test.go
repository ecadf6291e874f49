package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAndSearch(t *testing.T) {
	tbl := New(0, 0, 8)
	tbl.Seed([]byte("k1"), []byte("v1"), 0)

	assert.Equal(t, []byte("v1"), tbl.Search([]byte("k1")))
	assert.Equal(t, uint64(0), tbl.SearchMetadata([]byte("k1")).GetWts())
}

func TestUpdateChangesValueNotMetadata(t *testing.T) {
	tbl := New(0, 0, 8)
	tbl.Seed([]byte("k2"), []byte("v2"), 0)

	tbl.Update([]byte("k2"), []byte("v2-prime"))
	assert.Equal(t, []byte("v2-prime"), tbl.Search([]byte("k2")))
	assert.Equal(t, uint64(0), tbl.SearchMetadata([]byte("k2")).GetWts())
}

func TestDatabaseFindTable(t *testing.T) {
	db := NewDatabase()
	db.CreateTable(1, 0, 8)
	tbl := db.FindTable(1, 0)
	require.NotNil(t, tbl)
	assert.Equal(t, uint32(1), tbl.ID())
}

func TestDatabaseFindUnknownTablePanics(t *testing.T) {
	db := NewDatabase()
	assert.Panics(t, func() { db.FindTable(9, 9) })
}
