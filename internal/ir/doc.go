// Package ir provides the engine-native content values of a document.
//
// Every scalar or plain composite stored in a shared container is lowered to
// an IRValue before it reaches the engine, and read back through ToNative.
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Integers beyond ±(2^53-1) are IRBigInt, everything else numeric is IRNumber
//   - Object iteration uses SortedKeys for deterministic output
//   - MarshalCanonical is the only JSON rendering used for snapshots and hashes
package ir
