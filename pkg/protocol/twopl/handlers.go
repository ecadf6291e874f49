package twopl

import (
	"scar/pkg/message"
	"scar/pkg/protocol"
	"scar/pkg/table"
	"scar/pkg/txn"
)

// MessageHandlers returns the dispatch table the executor indexes by
// message.Type. LockRequest/LockResponse here carry both the lock
// acquisition and the value read under it, since 2PL locks at read time
// rather than deferring to a separate commit-time lock phase.
func MessageHandlers() protocol.HandlerTable {
	var h protocol.HandlerTable

	h[message.LockRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		keyOffset, key := protocol.DecodeKeyOffsetPayload(p.Payload)
		latest, ok := tbl.SearchMetadata(key).Lock()
		value := tbl.Search(key)
		reply.AddPiece(message.Piece{
			Type:        message.LockResponse,
			TableID:     p.TableID,
			PartitionID: p.PartitionID,
			Payload:     protocol.EncodeLockReadResponsePayload(ok, keyOffset, latest, value),
		})
	}

	h[message.LockResponse] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		ok, keyOffset, tidValue, value := protocol.DecodeLockReadResponsePayload(p.Payload)
		t.PendingResponses--
		if !ok {
			t.AbortLock = true
			return
		}
		rk := &t.ReadSet[keyOffset]
		rk.SetTid(tidValue)
		rk.Value = append(rk.Value[:0], value...)
	}

	h[message.WriteRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		key, value := protocol.DecodeKeyValuePayload(p.Payload)
		tbl.Update(key, value)
	}

	h[message.AbortRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		key, _ := protocol.DecodeKeyValuePayload(p.Payload)
		tbl.SearchMetadata(key).Unlock()
	}

	h[message.ReplicateRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		_, key, value := protocol.DecodeReplicatePayload(p.Payload)
		tbl.Update(key, value)
	}

	h[message.ReleaseLockRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		_, key, value := protocol.DecodeReplicatePayload(p.Payload)
		if len(value) > 0 {
			tbl.Update(key, value)
		}
		tbl.SearchMetadata(key).Unlock()
	}

	return h
}
