package silo

import (
	"scar/pkg/message"
	"scar/pkg/protocol"
	"scar/pkg/rwkey"
	"scar/pkg/table"
	"scar/pkg/tid"
	"scar/pkg/txn"
)

// MessageHandlers returns the dispatch table the executor indexes by
// message.Type when draining its inbound queue (spec.md §4.5's
// process_request). The same table serves both "request" types (handled at
// a record's master) and "response" types (handled at the transaction's
// origin, patching its read/write set and draining PendingResponses).
func MessageHandlers() protocol.HandlerTable {
	var h protocol.HandlerTable

	h[message.SearchRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		keyOffset, key := protocol.DecodeKeyOffsetPayload(p.Payload)
		value := tbl.Search(key)
		tidValue := tbl.SearchMetadata(key).Raw()
		reply.AddPiece(message.Piece{
			Type:        message.SearchResponse,
			TableID:     p.TableID,
			PartitionID: p.PartitionID,
			Payload:     protocol.EncodeSearchResponsePayload(keyOffset, tidValue, value),
		})
	}

	h[message.SearchResponse] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		keyOffset, tidValue, value := protocol.DecodeSearchResponsePayload(p.Payload)
		t.PendingResponses--
		rk := &t.ReadSet[keyOffset]
		rk.SetTid(tidValue)
		rk.Value = append(rk.Value[:0], value...)
	}

	h[message.LockRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		keyOffset, key := protocol.DecodeKeyOffsetPayload(p.Payload)
		latest, ok := tbl.SearchMetadata(key).Lock()
		reply.AddPiece(message.Piece{
			Type:        message.LockResponse,
			TableID:     p.TableID,
			PartitionID: p.PartitionID,
			Payload:     protocol.EncodeLockResponsePayload(ok, keyOffset, latest),
		})
	}

	h[message.LockResponse] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		ok, keyOffset, latest := protocol.DecodeLockResponsePayload(p.Payload)
		t.PendingResponses--
		if !ok {
			t.AbortLock = true
			return
		}
		wk := &t.WriteSet[keyOffset]
		wk.Set(rwkey.FlagWriteLock)
		wk.SetTid(latest)
	}

	h[message.ReadValidationRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		// Silo's check uses wts and the lock bit only; commit_ts is unused.
		keyOffset, readTid, _, key := protocol.DecodeReadValidationRequestPayload(p.Payload)
		written := tbl.SearchMetadata(key).Raw()
		ok := tid.GetWts(written) == tid.GetWts(readTid) && !tid.IsLocked(written)
		reply.AddPiece(message.Piece{
			Type:        message.ReadValidationResponse,
			TableID:     p.TableID,
			PartitionID: p.PartitionID,
			Payload:     protocol.EncodeReadValidationResponsePayload(ok, keyOffset, written),
		})
	}

	h[message.ReadValidationResponse] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		ok, keyOffset, written := protocol.DecodeReadValidationResponsePayload(p.Payload)
		t.PendingResponses--
		if !ok {
			t.AbortReadValidation = true
			return
		}
		rk := &t.ReadSet[keyOffset]
		rk.Set(rwkey.FlagReadValidationSuccess)
		if tid.GetWts(written) != tid.GetWts(rk.Tid) {
			rk.Set(rwkey.FlagWtsChangeInReadValidation)
			rk.SetTid(written)
		}
	}

	h[message.WriteRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		key, value := protocol.DecodeKeyValuePayload(p.Payload)
		tbl.Update(key, value)
	}

	// WRITE_REQ and REPLICATE_REQ get no reply: the sender does not count
	// them in PendingResponses and does not wait for them. A separate
	// RELEASE_LOCK_REQ always follows a WRITE_REQ to unlock with the commit
	// tid.

	h[message.AbortRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		key, _ := protocol.DecodeKeyValuePayload(p.Payload)
		tbl.SearchMetadata(key).Unlock()
	}

	h[message.ReplicateRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		commitWts, key, value := protocol.DecodeReplicatePayload(p.Payload)
		meta := tbl.SearchMetadata(key)
		meta.Lock()
		tbl.Update(key, value)
		meta.UnlockWithCommit(commitWts)
	}

	h[message.ReleaseLockRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		commitWts, key, value := protocol.DecodeReplicatePayload(p.Payload)
		tbl.Update(key, value)
		tbl.SearchMetadata(key).UnlockWithCommit(commitWts)
	}

	return h
}
