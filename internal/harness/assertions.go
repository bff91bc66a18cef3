package harness

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ir"
	"github.com/roach88/ydoc/internal/testutil"
	"github.com/roach88/ydoc/internal/ydoc"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, describeEvent(event))
		}
	}
	return buf.String()
}

func describeEvent(e TraceEvent) string {
	if len(e.Sync) > 0 {
		return fmt.Sprintf("step %d sync %s", e.Step, strings.Join(e.Sync, ","))
	}
	s := fmt.Sprintf("step %d %s %s(%s)", e.Step, e.Doc, e.Op, e.Root)
	if e.Error != "" {
		s += " -> " + e.Error
	}
	return s
}

// assertJSON checks that a root renders the expected JSON. Both sides are
// compared in canonical form, so key order and whitespace in Expect do not
// matter.
func assertJSON(result *Result, a Assertion) error {
	snap, ok := result.Documents[a.Doc]
	if !ok {
		return fmt.Errorf("json: document %q has no snapshot", a.Doc)
	}
	var want any
	if err := json.Unmarshal([]byte(a.Expect), &want); err != nil {
		return fmt.Errorf("json: expect is not valid JSON: %w", err)
	}
	wantJSON, err := ir.MarshalCanonical(want)
	if err != nil {
		return fmt.Errorf("json: %w", err)
	}

	value, ok := snap[a.Root]
	if !ok {
		return &AssertionError{
			Type:     AssertJSON,
			Expected: fmt.Sprintf("%s.%s = %s", a.Doc, a.Root, wantJSON),
			Actual:   "root does not exist",
			Trace:    result.Trace,
		}
	}
	gotJSON, err := ir.MarshalCanonical(value)
	if err != nil {
		return fmt.Errorf("json: %w", err)
	}
	if string(gotJSON) != string(wantJSON) {
		return &AssertionError{
			Type:     AssertJSON,
			Expected: fmt.Sprintf("%s.%s = %s", a.Doc, a.Root, wantJSON),
			Actual:   string(gotJSON),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertLength checks the number of elements, keys or offset units of a root.
func assertLength(doc *ydoc.Document, a Assertion) error {
	kind, err := engine.ParseKind(a.Kind)
	if err != nil {
		return err
	}
	root, err := doc.Root(a.Root, kind)
	if err != nil {
		return &AssertionError{
			Type:     AssertLength,
			Expected: fmt.Sprintf("%s.%s is a %s", a.Doc, a.Root, a.Kind),
			Actual:   err.Error(),
		}
	}
	sized, ok := root.(interface{ Len() int })
	if !ok {
		return fmt.Errorf("length: %T has no length", root)
	}
	if n := sized.Len(); n != a.Count {
		return &AssertionError{
			Type:     AssertLength,
			Expected: fmt.Sprintf("%s.%s has length %d", a.Doc, a.Root, a.Count),
			Actual:   fmt.Sprintf("length %d", n),
		}
	}
	return nil
}

// assertConverged checks that all listed documents hold equal state.
func assertConverged(docs []*ydoc.Document, a Assertion, trace []TraceEvent) error {
	if testutil.Converged(docs...) {
		return nil
	}
	return &AssertionError{
		Type:     AssertConverged,
		Expected: fmt.Sprintf("documents %s hold equal state", strings.Join(a.Docs, ", ")),
		Actual:   "snapshots differ",
		Trace:    trace,
	}
}

// assertOpError checks that a given op failed with the given code.
func assertOpError(result *Result, a Assertion) error {
	event, failed := result.failedOp(a.Step, a.OpIndex)
	if !failed {
		return &AssertionError{
			Type:     AssertError,
			Expected: fmt.Sprintf("step %d op %d fails with %s", a.Step, a.OpIndex, a.Code),
			Actual:   "op succeeded or did not run",
			Trace:    result.Trace,
		}
	}
	if event.Error != a.Code {
		return &AssertionError{
			Type:     AssertError,
			Expected: fmt.Sprintf("step %d op %d fails with %s", a.Step, a.OpIndex, a.Code),
			Actual:   event.Error,
			Trace:    result.Trace,
		}
	}
	return nil
}

// evaluate runs every assertion and returns failure messages.
// Ops that failed without a matching error assertion are failures too.
func (h *Harness) evaluate(result *Result, assertions []Assertion) []string {
	var errs []string
	expected := make(map[[2]int]bool)

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertJSON:
			err = assertJSON(result, a)
		case AssertLength:
			err = assertLength(h.docs[a.Doc], a)
		case AssertConverged:
			docs := make([]*ydoc.Document, len(a.Docs))
			for j, name := range a.Docs {
				docs[j] = h.docs[name]
			}
			err = assertConverged(docs, a, result.Trace)
		case AssertError:
			expected[[2]int{a.Step, a.OpIndex}] = true
			err = assertOpError(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	for _, e := range result.Trace {
		if e.Error != "" && !expected[[2]int{e.Step, e.opIndex}] {
			errs = append(errs, fmt.Sprintf("unexpected failure: %s", describeEvent(e)))
		}
	}
	return errs
}
