package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ydoc"
)

// Scenario drives one or more replicas through a list of steps and checks
// the resulting documents.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Documents are the replicas taking part, created before the first step.
	Documents []DocumentDef `yaml:"documents"`

	// Steps run in order. Each step is either a batch of ops on one document
	// or a sync between documents.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final documents and recorded op errors.
	Assertions []Assertion `yaml:"assertions"`
}

// DocumentDef declares a replica.
type DocumentDef struct {
	Name string `yaml:"name"`

	// ClientID fixes the replica's client ID. When zero, IDs are handed out
	// sequentially from 1 in declaration order.
	ClientID uint64 `yaml:"client_id,omitempty"`

	// OffsetKind is utf8 (default), utf16 or utf32.
	OffsetKind string `yaml:"offset_kind,omitempty"`
}

// Step is one unit of scenario work.
//
// With Doc set, Ops run inside a single transaction on that document.
// With Sync set, the listed documents exchange updates until they hold the
// same state.
type Step struct {
	Doc  string   `yaml:"doc,omitempty"`
	Ops  []Op     `yaml:"ops,omitempty"`
	Sync []string `yaml:"sync,omitempty"`
}

// Op is a single container operation. Which fields apply depends on Op.
//
// Values may be plain YAML values or preliminary containers written as a
// single-key mapping: {$array: [...]}, {$map: {...}} or {$text: "..."}.
type Op struct {
	// Op names the operation, e.g. "array.insert" or "map.set".
	Op string `yaml:"op"`

	// Root names the root container the op targets.
	Root string `yaml:"root"`

	Index   int            `yaml:"index,omitempty"`
	Length  int            `yaml:"length,omitempty"`
	Target  int            `yaml:"target,omitempty"`
	Key     string         `yaml:"key,omitempty"`
	Name    string         `yaml:"name,omitempty"`
	Text    string         `yaml:"text,omitempty"`
	Value   any            `yaml:"value,omitempty"`
	Values  []any          `yaml:"values,omitempty"`
	Entries map[string]any `yaml:"entries,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of json, length, converged or error.
	Type string `yaml:"type"`

	// Doc and Root select the container (json, length).
	Doc  string `yaml:"doc,omitempty"`
	Root string `yaml:"root,omitempty"`

	// Kind is the root's container kind (length).
	Kind string `yaml:"kind,omitempty"`

	// Expect is the canonical JSON the root must render (json).
	Expect string `yaml:"expect,omitempty"`

	// Count is the expected length (length).
	Count int `yaml:"count,omitempty"`

	// Docs lists the documents that must hold equal state (converged).
	Docs []string `yaml:"docs,omitempty"`

	// Step and OpIndex locate an op that must have failed with Code (error).
	Step    int    `yaml:"step,omitempty"`
	OpIndex int    `yaml:"op,omitempty"`
	Code    string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertJSON      = "json"
	AssertLength    = "length"
	AssertConverged = "converged"
	AssertError     = "error"
)

// Op names understood by the harness.
var knownOps = map[string]bool{
	"array.insert":          true,
	"array.append":          true,
	"array.delete":          true,
	"array.move":            true,
	"map.set":               true,
	"map.update":            true,
	"map.delete":            true,
	"text.insert":           true,
	"text.append":           true,
	"text.delete":           true,
	"text.embed":            true,
	"text.format":           true,
	"xml.push_element":      true,
	"xml.push_text":         true,
	"xml.set_attribute":     true,
	"xml.delete":            true,
	"xmltext.insert":        true,
	"xmltext.set_attribute": true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML from memory.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Documents) == 0 {
		return fmt.Errorf("documents list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	docs := make(map[string]bool, len(s.Documents))
	for i, d := range s.Documents {
		if d.Name == "" {
			return fmt.Errorf("documents[%d]: name is required", i)
		}
		if docs[d.Name] {
			return fmt.Errorf("documents[%d]: duplicate name %q", i, d.Name)
		}
		docs[d.Name] = true
		if d.OffsetKind != "" {
			if _, err := ydoc.ParseOffsetKind(d.OffsetKind); err != nil {
				return fmt.Errorf("documents[%d]: %w", i, err)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, docs); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, docs); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step, docs map[string]bool) error {
	switch {
	case step.Doc != "" && len(step.Sync) > 0:
		return fmt.Errorf("steps[%d]: doc and sync are mutually exclusive", index)
	case step.Doc != "":
		if !docs[step.Doc] {
			return fmt.Errorf("steps[%d]: unknown document %q", index, step.Doc)
		}
		if len(step.Ops) == 0 {
			return fmt.Errorf("steps[%d]: ops list is required", index)
		}
		for j, op := range step.Ops {
			if !knownOps[op.Op] {
				return fmt.Errorf("steps[%d].ops[%d]: unknown op %q", index, j, op.Op)
			}
			if op.Root == "" {
				return fmt.Errorf("steps[%d].ops[%d]: root is required", index, j)
			}
		}
	case len(step.Sync) > 0:
		if len(step.Sync) < 2 {
			return fmt.Errorf("steps[%d]: sync needs at least two documents", index)
		}
		for _, name := range step.Sync {
			if !docs[name] {
				return fmt.Errorf("steps[%d]: unknown document %q", index, name)
			}
		}
	default:
		return fmt.Errorf("steps[%d]: one of doc or sync is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, docs map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertJSON, AssertLength:
		if !docs[a.Doc] {
			return fmt.Errorf("assertions[%d]: unknown document %q", index, a.Doc)
		}
		if a.Root == "" {
			return fmt.Errorf("assertions[%d]: root is required for %s", index, a.Type)
		}
		if a.Type == AssertJSON && a.Expect == "" {
			return fmt.Errorf("assertions[%d]: expect is required for json", index)
		}
		if a.Type == AssertLength {
			if _, err := engine.ParseKind(a.Kind); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
			if a.Count < 0 {
				return fmt.Errorf("assertions[%d]: count must be non-negative for length", index)
			}
		}
	case AssertConverged:
		if len(a.Docs) < 2 {
			return fmt.Errorf("assertions[%d]: docs needs at least two documents for converged", index)
		}
		for _, name := range a.Docs {
			if !docs[name] {
				return fmt.Errorf("assertions[%d]: unknown document %q", index, name)
			}
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
		if a.Code != strings.ToUpper(a.Code) {
			return fmt.Errorf("assertions[%d]: code %q must be upper case", index, a.Code)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
