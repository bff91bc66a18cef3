package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainUpdate   = "ydoc/update/v1"
	DomainSnapshot = "ydoc/snapshot/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // Null separator - CRITICAL for security
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// UpdateHash identifies a binary update payload.
// The store uses it to make appends idempotent.
func UpdateHash(payload []byte) string {
	return hashWithDomain(DomainUpdate, payload)
}

// SnapshotHash fingerprints the observable content of a document.
// Two replicas that converged produce the same hash regardless of the
// order in which they received updates.
func SnapshotHash(content IRObject) (string, error) {
	canonical, err := MarshalCanonical(content)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
