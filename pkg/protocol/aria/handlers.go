package aria

import (
	"scar/pkg/message"
	"scar/pkg/protocol"
	"scar/pkg/table"
	"scar/pkg/txn"
)

// MessageHandlers returns the dispatch table the executor indexes by
// message.Type. Aria needs only replication: there is no lock phase (the
// epoch reservation table replaces it) and no read-validation round trip.
func MessageHandlers() protocol.HandlerTable {
	var h protocol.HandlerTable

	h[message.ReplicateRequest] = func(p message.Piece, reply *message.Message, tbl *table.Table, t *txn.Transaction) {
		_, key, value := protocol.DecodeReplicatePayload(p.Payload)
		tbl.Update(key, value)
	}

	return h
}
