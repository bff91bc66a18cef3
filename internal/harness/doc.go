// Package harness runs replica scenarios against the document adapter.
//
// A scenario declares a few documents, mutates them through container
// operations, syncs them with state-vector diffs and then checks the
// outcome. Every run is deterministic: documents without an explicit
// client_id get sequential IDs, so the same scenario always produces the
// same updates and the same snapshot.
//
// # Scenario Format
//
//	name: concurrent_append
//	description: "Two replicas append to one list and converge"
//	documents:
//	  - name: a
//	  - name: b
//	    offset_kind: utf16
//	steps:
//	  - doc: a
//	    ops:
//	      - op: array.append
//	        root: list
//	        values: [1, {$map: {k: v}}]
//	  - doc: b
//	    ops:
//	      - op: array.append
//	        root: list
//	        values: [2]
//	  - sync: [a, b]
//	assertions:
//	  - type: converged
//	    docs: [a, b]
//	  - type: length
//	    doc: a
//	    root: list
//	    kind: array
//	    count: 3
//
// All ops of one step run inside a single transaction. A failed op does not
// stop the step; its error code is recorded in the trace and the scenario
// fails unless an error assertion names it.
//
// # Operations
//
//   - array.insert (index, values), array.append (values), array.delete (index, length),
//     array.move (index, length, target)
//   - map.set (key, value), map.update (entries), map.delete (key)
//   - text.insert (index, text), text.append (text), text.delete (index, length), text.embed (index, value),
//     text.format (index, length, entries)
//   - xml.push_element (name), xml.push_text (text), xml.set_attribute (key, value), xml.delete (index, length)
//   - xmltext.insert (index, text), xmltext.set_attribute (key, value)
//
// Values written as {$array: [...]}, {$map: {...}} or {$text: "..."} become
// preliminary containers.
//
// # Assertion Types
//
//   - json: a root renders the expected JSON (compared canonically)
//   - length: a root of the given kind has the expected length
//   - converged: the listed documents hold equal state
//   - error: op `op` of step `step` failed with `code`
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON of every document and the
// trace against testdata/golden/<name>.golden.
package harness
