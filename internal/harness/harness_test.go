package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "testdata/scenarios"

func TestScenarios(t *testing.T) {
	scenarios, err := LoadDir(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestScenarios_Golden(t *testing.T) {
	for _, file := range []string{"01_kitchen_then_return.yaml", "02_manifest_reconcile.yaml"} {
		s, err := LoadScenario(filepath.Join(scenarioDir, file))
		require.NoError(t, err)

		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenarioDir, "05_reset_today.yaml"))
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalTrace(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.Final, second.Final)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	scanned := "https://vyt.to/abc123"
	created := 3
	s := &Scenario{
		Name:        "wrong",
		Description: "expectations that do not hold",
		Steps: []Step{
			{Scan: &scanned, Expect: &Expect{Status: "PREPARED"}},
			{Import: strPtr(`{"codes":["https://vyt.to/x"]}`), Expect: &Expect{Created: &created}},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Collection: "active", Count: 5},
			{Type: AssertRecord, Code: "https://vyt.to/x", Collection: "prepared"},
			{Type: AssertAbsent, Code: "https://vyt.to/x"},
			{Type: AssertPushes, Count: 0},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "status")
	assert.Contains(t, result.Errors[1], "created = 1, want 3")
}

func strPtr(s string) *string { return &s }

func TestLoadScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "description: d\nsteps:\n  - reset: true\n", "name is required"},
		{"missing description", "name: n\nsteps:\n  - reset: true\n", "description is required"},
		{"no steps", "name: n\ndescription: d\n", "steps list is required"},
		{"two actions", "name: n\ndescription: d\nsteps:\n  - reset: true\n    scan: x\n", "exactly one of"},
		{"bad advance", "name: n\ndescription: d\nsteps:\n  - advance: soon\n", "advance"},
		{"missing import file", "name: n\ndescription: d\nsteps:\n  - import_file: nope.json\n", "import_file"},
		{"unknown assertion", "name: n\ndescription: d\nsteps:\n  - reset: true\nassertions:\n  - type: magic\n", "unknown assertion type"},
		{"unknown collection", "name: n\ndescription: d\nsteps:\n  - reset: true\nassertions:\n  - type: count\n    collection: lost\n", "unknown collection"},
		{"typo", "name: n\ndescription: d\nstep:\n  - reset: true\n", "failed to parse YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{
		Type:     AssertCount,
		Expected: "1 records in active",
		Actual:   "0",
		Trace:    []TraceEvent{{Seq: 1, Type: "scan", Code: "https://vyt.to/a", Error: "NOT_PREPARED"}},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: count")
	assert.Contains(t, msg, "Expected: 1 records in active")
	assert.Contains(t, msg, "[1] scan https://vyt.to/a NOT_PREPARED")
}
