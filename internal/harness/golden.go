package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/swiftdriver/internal/ir"
)

// TraceSnapshot captures the traces of every build of a scenario.
type TraceSnapshot struct {
	ScenarioName string          `json:"scenario_name"`
	Builds       []BuildSnapshot `json:"builds"`
}

// BuildSnapshot is the golden form of one build.
type BuildSnapshot struct {
	Name      string   `json:"name"`
	Succeeded bool     `json:"succeeded"`
	Error     string   `json:"error,omitempty"`
	Events    []string `json:"events"`
}

// Snapshot returns the golden form of result.
func Snapshot(name string, result *Result) TraceSnapshot {
	snap := TraceSnapshot{ScenarioName: name, Builds: make([]BuildSnapshot, len(result.Builds))}
	for i, b := range result.Builds {
		snap.Builds[i] = BuildSnapshot{
			Name:      b.Name,
			Succeeded: b.Succeeded,
			Error:     b.Error,
			Events:    orEmpty(b.Events),
		}
	}
	return snap
}

// RunWithGolden runs a scenario and checks its traces against
// testdata/golden/<name>.golden. Pass -update to rewrite the file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden checks an existing result against the golden file of name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := ir.MarshalCanonicalIndent(Snapshot(name, result))
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", name, err)
	}
	goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, name, data)
	return nil
}
