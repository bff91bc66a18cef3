// Package ydoc is the host-facing API over the replicated document engine.
//
// A Document owns named root containers. Containers are reached through
// handles (*Array, *Map, *Text, *XMLElement, *XMLText). A handle built with
// NewArray, NewMap and friends is Preliminary: it buffers content in memory
// until it is inserted into an integrated container, at which point it
// becomes Integrated and refers to live document content.
//
// ARCHITECTURE:
//
// Transaction arbiter:
// A document has one mutable transaction at a time. BeginTransaction and
// Transact hand out references to it; the transaction commits when Commit is
// called or the last reference is released. References dropped without
// either are released by the garbage collector and committed on the next
// document access (or Document.Drain).
//
// Value classification:
// Values passed to Insert, Set and friends are classified before anything is
// written. Plain values (nil, bool, numbers, strings, []byte, slices and
// string-keyed maps of plain values) are stored as is. Preliminary handles
// become nested containers. Anything else is ErrCodeUnsupportedType.
//
// Events:
// Observers receive events describing what a transaction changed. Event data
// is computed lazily and only while the callback runs; values computed
// during the callback stay readable after it.
//
// CRITICAL PATTERNS:
//
// Implicit transactions:
// Every mutating method takes a *Transaction. Passing nil opens (or joins)
// a transaction for the duration of the call.
//
// Errors:
// All failures are *Error values with an ErrorCode. An error aborts only the
// operation that returned it, never the transaction.
//
// Single writer:
// A Document is not safe for concurrent use.
package ydoc
