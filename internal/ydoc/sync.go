package ydoc

import (
	"encoding/binary"
	"fmt"
)

// EncodeStateVector encodes what doc has seen from every client.
func EncodeStateVector(doc *Document) []byte {
	var sv []byte
	doc.read(func() { sv = doc.eng.EncodeStateVector() })
	return sv
}

// EncodeStateAsUpdate encodes everything the holder of the encoded state
// vector sv lacks. A nil or empty sv encodes the whole document.
func EncodeStateAsUpdate(doc *Document, sv []byte) ([]byte, error) {
	var (
		update []byte
		err    error
	)
	doc.read(func() { update, err = doc.eng.EncodeStateAsUpdate(sv) })
	return update, translate(err)
}

// ApplyUpdate integrates update into doc in its own transaction, or in the
// open one when a transaction is already running.
func ApplyUpdate(doc *Document, update []byte) error {
	return doc.Transact(func(txn *Transaction) error {
		return txn.Apply(update)
	})
}

// SyncMessageType is the first field of a sync message.
type SyncMessageType byte

// Sync message types.
const (
	// SyncStep1 carries the sender's state vector.
	SyncStep1 SyncMessageType = 0
	// SyncStep2 carries the update answering a SyncStep1.
	SyncStep2 SyncMessageType = 1
	// SyncUpdate carries an incremental update.
	SyncUpdate SyncMessageType = 2
)

func (t SyncMessageType) String() string {
	switch t {
	case SyncStep1:
		return "sync_step1"
	case SyncStep2:
		return "sync_step2"
	case SyncUpdate:
		return "update"
	default:
		return fmt.Sprintf("sync_type(%d)", byte(t))
	}
}

// SyncMessage is a decoded sync message.
type SyncMessage struct {
	Type    SyncMessageType
	Payload []byte
}

// EncodeSyncStep1 frames doc's state vector.
func EncodeSyncStep1(doc *Document) []byte {
	return encodeSyncMessage(SyncStep1, EncodeStateVector(doc))
}

// EncodeSyncStep2 frames the update a peer with state vector sv is missing.
func EncodeSyncStep2(doc *Document, sv []byte) ([]byte, error) {
	update, err := EncodeStateAsUpdate(doc, sv)
	if err != nil {
		return nil, err
	}
	return encodeSyncMessage(SyncStep2, update), nil
}

// EncodeSyncUpdate frames an incremental update.
func EncodeSyncUpdate(update []byte) []byte {
	return encodeSyncMessage(SyncUpdate, update)
}

// wire format: varuint(type) varuint(len(payload)) payload
func encodeSyncMessage(t SyncMessageType, payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+2*binary.MaxVarintLen64)
	buf = binary.AppendUvarint(buf, uint64(t))
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// DecodeSyncMessage parses one framed sync message. Trailing bytes are an
// encoding error.
func DecodeSyncMessage(msg []byte) (SyncMessage, error) {
	t, n := binary.Uvarint(msg)
	if n <= 0 {
		return SyncMessage{}, newError(ErrCodeEncoding, nil, "sync message: malformed type")
	}
	if t > uint64(SyncUpdate) {
		return SyncMessage{}, newError(ErrCodeEncoding, nil, "sync message: unknown type %d", t)
	}
	rest := msg[n:]
	size, n := binary.Uvarint(rest)
	if n <= 0 {
		return SyncMessage{}, newError(ErrCodeEncoding, nil, "sync message: malformed length")
	}
	rest = rest[n:]
	if size != uint64(len(rest)) {
		return SyncMessage{}, newError(ErrCodeEncoding, nil,
			"sync message: payload length %d, have %d bytes", size, len(rest))
	}
	return SyncMessage{Type: SyncMessageType(t), Payload: append([]byte(nil), rest...)}, nil
}

// HandleSyncMessage applies msg to doc and returns the reply to send back,
// nil when there is none. SyncStep1 is answered with a SyncStep2; SyncStep2
// and SyncUpdate are applied.
func HandleSyncMessage(doc *Document, msg []byte) ([]byte, error) {
	m, err := DecodeSyncMessage(msg)
	if err != nil {
		return nil, err
	}
	switch m.Type {
	case SyncStep1:
		return EncodeSyncStep2(doc, m.Payload)
	default:
		return nil, ApplyUpdate(doc, m.Payload)
	}
}
