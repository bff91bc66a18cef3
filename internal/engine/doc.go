// Package engine implements the replicated document model behind ydoc.
//
// A Doc holds named root containers (arrays, maps, text and XML nodes).
// Every piece of content is an Item identified by (client, clock); items
// are ordered with the YATA algorithm so replicas that integrate the same
// items converge to the same document regardless of arrival order.
//
// ARCHITECTURE:
//
// Transactions:
// All mutation goes through a Txn opened with Doc.Begin. A document has at
// most one open Txn. Commit encodes the changes as a binary update, fires
// container observers, then after-transaction observers, then collects
// deleted content.
//
// Updates:
// Updates and state vectors use a compact varint encoding. Items that arrive
// before their dependencies are held as pending and integrated later.
//
// CRITICAL PATTERNS:
//
// Logical clocks:
// Item order is decided by origins and client IDs only, never by wall time.
//
// Single writer:
// Doc is not safe for concurrent use; the caller serializes transactions.
//
// Events are transaction-scoped:
// Event.Delta and Event.Keys read the transaction's bookkeeping and fail
// once the commit has finished.
package engine
