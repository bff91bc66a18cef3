package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/ydoc/internal/testutil"
	"github.com/roach88/ydoc/internal/ydoc"
)

// Harness executes one scenario against a set of in-memory replicas.
type Harness struct {
	docs   map[string]*ydoc.Document
	order  []string
	logger *slog.Logger
}

// invalidValueError marks a value the scenario itself got wrong, as opposed
// to one the document rejected.
type invalidValueError struct {
	msg string
}

func (e *invalidValueError) Error() string { return e.msg }

// Run executes a scenario and returns the result.
//
// Each run creates fresh replicas. Replicas without an explicit client_id
// draw IDs 1, 2, ... from a sequential generator so updates and snapshots
// are reproducible.
//
// Execution flow:
// 1. Create the declared documents
// 2. Run each step (ops in one transaction, or a sync)
// 3. Snapshot every document
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, discardLogger())
}

// RunWithLogger is Run with the given logger attached to every replica.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	h, err := newHarness(scenario, logger)
	if err != nil {
		return nil, err
	}
	return h.run(scenario)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHarness creates the scenario's documents.
func newHarness(scenario *Scenario, logger *slog.Logger) (*Harness, error) {
	h := &Harness{
		docs:   make(map[string]*ydoc.Document, len(scenario.Documents)),
		logger: logger,
	}
	ids := testutil.NewSequentialClientIDs(1)
	for _, def := range scenario.Documents {
		opts := []ydoc.Option{ydoc.WithLogger(logger)}
		if def.ClientID != 0 {
			opts = append(opts, ydoc.WithClientID(def.ClientID))
		} else {
			opts = append(opts, ydoc.WithClientIDGenerator(ids))
		}
		if def.OffsetKind != "" {
			opts = append(opts, ydoc.WithOffsetKindName(def.OffsetKind))
		}
		doc, err := ydoc.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create document %q: %w", def.Name, err)
		}
		h.docs[def.Name] = doc
		h.order = append(h.order, def.Name)
	}
	return h, nil
}

func (h *Harness) run(scenario *Scenario) (*Result, error) {
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, name := range h.order {
		result.Documents[name] = h.docs[name].Snapshot()
	}

	for _, msg := range h.evaluate(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(index int, step Step, result *Result) error {
	if len(step.Sync) > 0 {
		docs := make([]*ydoc.Document, len(step.Sync))
		for i, name := range step.Sync {
			docs[i] = h.docs[name]
		}
		if err := testutil.ExchangeUpdates(docs...); err != nil {
			return fmt.Errorf("sync %s: %w", strings.Join(step.Sync, ","), err)
		}
		result.Trace = append(result.Trace, TraceEvent{Step: index, Sync: step.Sync})
		h.logger.Info("sync step completed", "step", index, "docs", step.Sync)
		return nil
	}

	doc := h.docs[step.Doc]
	var fatal error
	err := doc.Transact(func(txn *ydoc.Transaction) error {
		for j, op := range step.Ops {
			opErr := applyOp(doc, txn, op)
			var invalid *invalidValueError
			if errors.As(opErr, &invalid) {
				fatal = fmt.Errorf("ops[%d]: %w", j, opErr)
				return fatal
			}
			event := TraceEvent{Step: index, Doc: step.Doc, Op: op.Op, Root: op.Root, opIndex: j}
			if opErr != nil {
				event.Error = string(ydoc.CodeOf(opErr))
				if event.Error == "" {
					event.Error = opErr.Error()
				}
				h.logger.Info("op failed", "step", index, "op", op.Op, "error", opErr)
			}
			result.Trace = append(result.Trace, event)
		}
		return nil
	})
	if fatal != nil {
		return fatal
	}
	return err
}

// applyOp performs one op inside txn.
func applyOp(doc *ydoc.Document, txn *ydoc.Transaction, op Op) error {
	length := op.Length
	if length == 0 {
		length = 1
	}

	switch op.Op {
	case "array.insert", "array.append":
		arr, err := doc.GetArray(op.Root)
		if err != nil {
			return err
		}
		values, err := convertValues(op.Values)
		if err != nil {
			return err
		}
		if op.Op == "array.append" {
			return arr.Append(txn, values...)
		}
		return arr.Insert(txn, op.Index, values...)
	case "array.delete":
		arr, err := doc.GetArray(op.Root)
		if err != nil {
			return err
		}
		return arr.DeleteRange(txn, op.Index, length)

	case "array.move":
		arr, err := doc.GetArray(op.Root)
		if err != nil {
			return err
		}
		return arr.MoveRange(txn, op.Index, op.Index+length-1, op.Target)

	case "map.set":
		m, err := doc.GetMap(op.Root)
		if err != nil {
			return err
		}
		value, err := convertValue(op.Value)
		if err != nil {
			return err
		}
		return m.Set(txn, op.Key, value)
	case "map.update":
		m, err := doc.GetMap(op.Root)
		if err != nil {
			return err
		}
		entries, err := convertEntries(op.Entries)
		if err != nil {
			return err
		}
		return m.Update(txn, entries)
	case "map.delete":
		m, err := doc.GetMap(op.Root)
		if err != nil {
			return err
		}
		return m.Delete(txn, op.Key)

	case "text.insert", "text.append":
		text, err := doc.GetText(op.Root)
		if err != nil {
			return err
		}
		if op.Op == "text.append" {
			return text.Extend(txn, op.Text)
		}
		return text.Insert(txn, op.Index, op.Text)
	case "text.delete":
		text, err := doc.GetText(op.Root)
		if err != nil {
			return err
		}
		return text.DeleteRange(txn, op.Index, length)
	case "text.embed":
		text, err := doc.GetText(op.Root)
		if err != nil {
			return err
		}
		value, err := convertValue(op.Value)
		if err != nil {
			return err
		}
		return text.InsertEmbed(txn, op.Index, value)

	case "text.format":
		text, err := doc.GetText(op.Root)
		if err != nil {
			return err
		}
		attrs, err := convertEntries(op.Entries)
		if err != nil {
			return err
		}
		return text.Format(txn, op.Index, length, attrs)

	case "xml.push_element":
		el, err := doc.GetXMLElement(op.Root)
		if err != nil {
			return err
		}
		_, err = el.PushXMLElement(txn, op.Name)
		return err
	case "xml.push_text":
		el, err := doc.GetXMLElement(op.Root)
		if err != nil {
			return err
		}
		node, err := el.PushXMLText(txn)
		if err != nil {
			return err
		}
		return node.Push(txn, op.Text)
	case "xml.set_attribute":
		el, err := doc.GetXMLElement(op.Root)
		if err != nil {
			return err
		}
		return el.SetAttribute(txn, op.Key, fmt.Sprint(op.Value))
	case "xml.delete":
		el, err := doc.GetXMLElement(op.Root)
		if err != nil {
			return err
		}
		return el.Delete(txn, op.Index, length)

	case "xmltext.insert":
		node, err := doc.GetXMLText(op.Root)
		if err != nil {
			return err
		}
		return node.Insert(txn, op.Index, op.Text)
	case "xmltext.set_attribute":
		node, err := doc.GetXMLText(op.Root)
		if err != nil {
			return err
		}
		return node.SetAttribute(txn, op.Key, fmt.Sprint(op.Value))
	}
	return &invalidValueError{msg: fmt.Sprintf("unknown op %q", op.Op)}
}

// convertValue turns a YAML value into something a container accepts,
// building preliminary containers for $array, $map and $text mappings.
func convertValue(v any) (any, error) {
	switch val := v.(type) {
	case []any:
		return convertValues(val)
	case map[string]any:
		if len(val) == 1 {
			for key, inner := range val {
				if strings.HasPrefix(key, "$") {
					return convertPrelim(key, inner)
				}
			}
		}
		return convertEntries(val)
	default:
		return v, nil
	}
}

func convertPrelim(tag string, inner any) (any, error) {
	switch tag {
	case "$array":
		list, ok := inner.([]any)
		if !ok && inner != nil {
			return nil, &invalidValueError{msg: fmt.Sprintf("$array needs a list, got %T", inner)}
		}
		values, err := convertValues(list)
		if err != nil {
			return nil, err
		}
		return ydoc.NewArray(values...), nil
	case "$map":
		entries, ok := inner.(map[string]any)
		if !ok && inner != nil {
			return nil, &invalidValueError{msg: fmt.Sprintf("$map needs a mapping, got %T", inner)}
		}
		converted, err := convertEntries(entries)
		if err != nil {
			return nil, err
		}
		return ydoc.NewMap(converted), nil
	case "$text":
		s, ok := inner.(string)
		if !ok && inner != nil {
			return nil, &invalidValueError{msg: fmt.Sprintf("$text needs a string, got %T", inner)}
		}
		return ydoc.NewText(s), nil
	default:
		return nil, &invalidValueError{msg: fmt.Sprintf("unknown container tag %q", tag)}
	}
}

func convertValues(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		c, err := convertValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func convertEntries(entries map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(entries))
	for k, v := range entries {
		c, err := convertValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = c
	}
	return out, nil
}
