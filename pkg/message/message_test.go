package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := New(0, 1, 2)
	m.AddPiece(Piece{Type: LockRequest, TableID: 1, PartitionID: 3, Payload: []byte("key-a")})
	m.AddPiece(Piece{Type: WriteRequest, TableID: 1, PartitionID: 3, Payload: []byte("value-b")})

	buf := Encode(m)
	got, err := Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, m.Header, got.Header)
	require.Len(t, got.Pieces(), 2)
	assert.Equal(t, LockRequest, got.Pieces()[0].Type)
	assert.Equal(t, []byte("key-a"), got.Pieces()[0].Payload)
	assert.Equal(t, []byte("value-b"), got.Pieces()[1].Payload)
}

func TestDecodeRejectsTruncatedHeader(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	m := New(0, 1, 0)
	m.AddPiece(Piece{Type: SearchRequest, Payload: []byte("abcdef")})
	buf := Encode(m)
	_, err := Decode(buf[:len(buf)-3])
	assert.Error(t, err)
}
