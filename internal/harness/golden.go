package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/bowltrack/internal/bowl"
)

// TraceSnapshot is what a golden file holds.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	Pushes       int          `json:"pushes"`
}

// MarshalTrace renders result as canonical JSON.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	return bowl.MarshalCanonical(TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Pushes:       result.Pushes,
	})
}

// RunWithGolden runs scenario, fails t on scenario errors and compares the
// trace with testdata/golden/<name>.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalTrace(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
