package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ydoc/internal/ir"
)

// Snapshot captures the outcome of a scenario for golden comparison.
type Snapshot struct {
	ScenarioName string
	Documents    map[string]ir.IRObject
	Trace        []TraceEvent
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization.
func (s *Snapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{"step": event.Step}
		if len(event.Sync) > 0 {
			docs := make([]any, len(event.Sync))
			for j, d := range event.Sync {
				docs[j] = d
			}
			eventMap["sync"] = docs
		} else {
			eventMap["doc"] = event.Doc
			eventMap["op"] = event.Op
			eventMap["root"] = event.Root
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
		}
		traceList[i] = eventMap
	}

	docs := make(map[string]any, len(s.Documents))
	for name, snap := range s.Documents {
		docs[name] = snap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"documents":     docs,
		"trace":         traceList,
	}
}

// MarshalSnapshot renders the result of a scenario as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		ScenarioName: name,
		Documents:    result.Documents,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
