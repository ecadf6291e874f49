package rstore

import (
	"scar/pkg/message"
	"scar/pkg/protocol"
	"scar/pkg/table"
	"scar/pkg/txn"
)

// MessageHandlers returns the dispatch table the executor indexes by
// message.Type. R-Store only ever needs to apply replicated writes; cross
// partition reads during C-phase are answered by the local protocol.Search,
// not by a remote round trip, since CPartitioner fully replicates every
// partition everywhere.
func MessageHandlers() protocol.HandlerTable {
	var h protocol.HandlerTable

	h[message.ReplicateRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		_, key, value := protocol.DecodeReplicatePayload(p.Payload)
		tbl.Update(key, value)
	}

	return h
}
