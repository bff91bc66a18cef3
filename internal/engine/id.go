package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ID identifies one item: the replica that created it and that replica's
// clock at creation time.
type ID struct {
	Client uint64
	Clock  uint64
}

// String renders the ID as client:clock.
func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Client, id.Clock)
}

func sameID(a, b *ID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ClientIDGenerator produces replica identifiers for new documents.
// Implemented by UUIDClientIDs (production) and testutil.SequentialClientIDs (tests).
type ClientIDGenerator interface {
	Generate() uint64
}

// UUIDClientIDs derives random 31-bit client IDs from version 4 UUIDs.
//
// 31 bits keep IDs positive in every runtime that exchanges updates with
// signed 32-bit integers.
//
// Thread-safety: UUIDClientIDs is stateless and safe for concurrent use.
type UUIDClientIDs struct{}

// Generate returns a random client ID.
func (UUIDClientIDs) Generate() uint64 {
	u := uuid.New()
	return uint64(binary.BigEndian.Uint32(u[:4]) & 0x7fffffff)
}
