// Package store provides SQLite-backed durable storage for document updates.
//
// The store is an append-only log per document:
//   - Documents: name, GUID and the client ID the document writes with
//   - Updates: binary updates in the order they were recorded
//
// # Critical Patterns
//
// Content-addressed idempotency:
//   - UNIQUE(doc_name, hash) where hash is ir.UpdateHash(payload)
//   - Appending the same update twice records it once
//
// Logical ordering:
//   - Updates are ordered by seq, a per-document counter, NEVER timestamps
//   - All reads use ORDER BY seq ASC, id ASC
//
// Compaction:
//   - Compact replaces a prefix of the log with one merged update inside a
//     single SQL transaction, so readers see either the old rows or the new one
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
