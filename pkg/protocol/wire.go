package protocol

import "encoding/binary"

// The payload codecs below are shared by every protocol package (silo,
// scar, twopl, rstore, aria) so their wire shapes stay consistent. Each
// function name says which message.Type it serializes for.

func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func getUint32(b []byte) uint32    { return binary.BigEndian.Uint32(b) }
func putUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func getUint64(b []byte) uint64    { return binary.BigEndian.Uint64(b) }

// EncodeKeyOffsetPayload encodes {keyOffset uint32}{key}. Used by
// SEARCH_REQ and LOCK_REQ, where the only extra state needed is which
// read/write-set slot to patch on reply.
func EncodeKeyOffsetPayload(keyOffset int, key []byte) []byte {
	buf := make([]byte, 4+len(key))
	putUint32(buf, uint32(keyOffset))
	copy(buf[4:], key)
	return buf
}

func DecodeKeyOffsetPayload(payload []byte) (keyOffset int, key []byte) {
	return int(getUint32(payload)), payload[4:]
}

// EncodeLockResponsePayload encodes {success byte}{keyOffset uint32}{tid uint64}.
func EncodeLockResponsePayload(success bool, keyOffset int, tid uint64) []byte {
	buf := make([]byte, 1+4+8)
	if success {
		buf[0] = 1
	}
	putUint32(buf[1:], uint32(keyOffset))
	putUint64(buf[5:], tid)
	return buf
}

func DecodeLockResponsePayload(payload []byte) (success bool, keyOffset int, tid uint64) {
	return payload[0] == 1, int(getUint32(payload[1:])), getUint64(payload[5:])
}

// EncodeReadValidationRequestPayload encodes
// {keyOffset uint32}{readTid uint64}{commitTs uint64}{key}.
func EncodeReadValidationRequestPayload(keyOffset int, readTid, commitTs uint64, key []byte) []byte {
	buf := make([]byte, 4+8+8+len(key))
	putUint32(buf, uint32(keyOffset))
	putUint64(buf[4:], readTid)
	putUint64(buf[12:], commitTs)
	copy(buf[20:], key)
	return buf
}

func DecodeReadValidationRequestPayload(payload []byte) (keyOffset int, readTid, commitTs uint64, key []byte) {
	return int(getUint32(payload)), getUint64(payload[4:]), getUint64(payload[12:]), payload[20:]
}

// EncodeReadValidationResponsePayload encodes
// {success byte}{keyOffset uint32}{writtenTid uint64}.
func EncodeReadValidationResponsePayload(success bool, keyOffset int, writtenTid uint64) []byte {
	buf := make([]byte, 1+4+8)
	if success {
		buf[0] = 1
	}
	putUint32(buf[1:], uint32(keyOffset))
	putUint64(buf[5:], writtenTid)
	return buf
}

func DecodeReadValidationResponsePayload(payload []byte) (success bool, keyOffset int, writtenTid uint64) {
	return payload[0] == 1, int(getUint32(payload[1:])), getUint64(payload[5:])
}

// EncodeKeyValuePayload encodes {keyLen uint32}{key}{value}. Used by
// WRITE_REQ and ABORT_REQ (value empty for abort).
func EncodeKeyValuePayload(key, value []byte) []byte {
	buf := make([]byte, 4+len(key)+len(value))
	putUint32(buf, uint32(len(key)))
	copy(buf[4:], key)
	copy(buf[4+len(key):], value)
	return buf
}

func DecodeKeyValuePayload(payload []byte) (key, value []byte) {
	keyLen := int(getUint32(payload))
	return payload[4 : 4+keyLen], payload[4+keyLen:]
}

// EncodeReplicatePayload encodes {commitWts uint64}{keyLen uint32}{key}{value}.
func EncodeReplicatePayload(commitWts uint64, key, value []byte) []byte {
	buf := make([]byte, 8+4+len(key)+len(value))
	putUint64(buf, commitWts)
	putUint32(buf[8:], uint32(len(key)))
	copy(buf[12:], key)
	copy(buf[12+len(key):], value)
	return buf
}

func DecodeReplicatePayload(payload []byte) (commitWts uint64, key, value []byte) {
	commitWts = getUint64(payload)
	keyLen := int(getUint32(payload[8:]))
	return commitWts, payload[12 : 12+keyLen], payload[12+keyLen:]
}

// EncodeSearchResponsePayload encodes {keyOffset uint32}{tid uint64}{value}.
// Used by SEARCH_RSP, the reply to a non-locking remote read (Silo, Scar,
// RStore).
func EncodeSearchResponsePayload(keyOffset int, tidValue uint64, value []byte) []byte {
	buf := make([]byte, 4+8+len(value))
	putUint32(buf, uint32(keyOffset))
	putUint64(buf[4:], tidValue)
	copy(buf[12:], value)
	return buf
}

func DecodeSearchResponsePayload(payload []byte) (keyOffset int, tidValue uint64, value []byte) {
	return int(getUint32(payload)), getUint64(payload[4:]), payload[12:]
}

// EncodeLockReadResponsePayload encodes
// {success byte}{keyOffset uint32}{tid uint64}{value}. Used by 2PL's
// combined lock-and-read round trip, where a single remote message must
// return both the current value and the tid observed under lock.
func EncodeLockReadResponsePayload(success bool, keyOffset int, tid uint64, value []byte) []byte {
	buf := make([]byte, 1+4+8+len(value))
	if success {
		buf[0] = 1
	}
	putUint32(buf[1:], uint32(keyOffset))
	putUint64(buf[5:], tid)
	copy(buf[13:], value)
	return buf
}

func DecodeLockReadResponsePayload(payload []byte) (success bool, keyOffset int, tid uint64, value []byte) {
	return payload[0] == 1, int(getUint32(payload[1:])), getUint64(payload[5:]), payload[13:]
}
