package harness

import "github.com/roach88/ydoc/internal/ir"

// TraceEvent records one executed op or sync.
type TraceEvent struct {
	Step int    `json:"step"`
	Doc  string `json:"doc,omitempty"`
	Op   string `json:"op,omitempty"`
	Root string `json:"root,omitempty"`

	// Sync lists the documents of a sync step.
	Sync []string `json:"sync,omitempty"`

	// Error is the error code of a failed op, empty on success.
	Error string `json:"error,omitempty"`

	// opIndex is the op's position within its step.
	opIndex int
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held and no op failed unexpectedly.
	Pass bool `json:"pass"`

	// Trace lists every op and sync in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Documents holds each replica's final snapshot, keyed by document name.
	Documents map[string]ir.IRObject `json:"documents"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Documents: make(map[string]ir.IRObject),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// failedOp returns the trace event of op opIndex in step, if it failed.
func (r *Result) failedOp(step, opIndex int) (TraceEvent, bool) {
	for _, e := range r.Trace {
		if e.Step == step && e.Op != "" && e.opIndex == opIndex {
			return e, e.Error != ""
		}
	}
	return TraceEvent{}, false
}
