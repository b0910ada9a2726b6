package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bowltrack/internal/scan"
)

// DefaultStart is the clock start for scenarios that do not set one.
var DefaultStart = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// Scenario is one conformance scenario.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description says what the scenario checks.
	Description string `yaml:"description"`

	// Start is the frozen clock's initial time. Defaults to DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	// Prefixes overrides the manifest allow-list.
	Prefixes []string `yaml:"prefixes,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`

	// dir resolves import_file paths.
	dir string
}

// Step is one action. Exactly one of the action fields is set.
type Step struct {
	Session    *scan.Session `yaml:"session,omitempty"`
	Scan       *string       `yaml:"scan,omitempty"`
	Import     *string       `yaml:"import,omitempty"`
	ImportFile string        `yaml:"import_file,omitempty"`
	Advance    string        `yaml:"advance,omitempty"`
	Reset      bool          `yaml:"reset,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// kind names the action a step performs.
func (s Step) kind() string {
	var kinds []string
	if s.Session != nil {
		kinds = append(kinds, "session")
	}
	if s.Scan != nil {
		kinds = append(kinds, "scan")
	}
	if s.Import != nil || s.ImportFile != "" {
		kinds = append(kinds, "import")
	}
	if s.Advance != "" {
		kinds = append(kinds, "advance")
	}
	if s.Reset {
		kinds = append(kinds, "reset")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Expect checks the outcome of one step. Unset fields are not checked.
type Expect struct {
	Severity      string `yaml:"severity,omitempty"`
	Status        string `yaml:"status,omitempty"`
	Message       string `yaml:"message,omitempty"`
	Error         string `yaml:"error,omitempty"`
	CustomerReset *bool  `yaml:"customer_reset,omitempty"`

	Created    *int `yaml:"created,omitempty"`
	Updated    *int `yaml:"updated,omitempty"`
	Moved      *int `yaml:"moved,omitempty"`
	Rejected   *int `yaml:"rejected,omitempty"`
	Duplicates *int `yaml:"duplicates,omitempty"`
	Removed    *int `yaml:"removed,omitempty"`
}

// Assertion checks the final state.
type Assertion struct {
	Type string `yaml:"type"`

	Collection string         `yaml:"collection,omitempty"`
	Code       string         `yaml:"code,omitempty"`
	Count      int            `yaml:"count,omitempty"`
	Event      string         `yaml:"event,omitempty"`
	Expect     map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertCount      = "count"
	AssertRecord     = "record"
	AssertAbsent     = "absent"
	AssertDisjoint   = "disjoint"
	AssertPushes     = "pushes"
	AssertTraceCount = "trace_count"
)

var collections = map[string]bool{
	"prepared": true,
	"active":   true,
	"returned": true,
	"scans":    true,
	"history":  true,
}

// LoadScenario reads and validates a scenario file. Unknown keys are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	s.dir = filepath.Dir(path)

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		kind := step.kind()
		if kind == "" {
			return fmt.Errorf("steps[%d]: exactly one of session, scan, import, import_file, advance, reset is required", i)
		}
		if kind == "advance" {
			if _, err := time.ParseDuration(step.Advance); err != nil {
				return fmt.Errorf("steps[%d]: advance: %w", i, err)
			}
			if step.Expect != nil {
				return fmt.Errorf("steps[%d]: advance takes no expect", i)
			}
		}
		if step.ImportFile != "" {
			p := step.ImportFile
			if !filepath.IsAbs(p) {
				p = filepath.Join(s.dir, p)
			}
			if _, err := os.Stat(p); err != nil {
				return fmt.Errorf("steps[%d]: import_file: %w", i, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCount:
		if !collections[a.Collection] {
			return fmt.Errorf("assertions[%d]: unknown collection %q", index, a.Collection)
		}
	case AssertRecord:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for record", index)
		}
		if a.Collection != "" && !collections[a.Collection] {
			return fmt.Errorf("assertions[%d]: unknown collection %q", index, a.Collection)
		}
	case AssertAbsent:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for absent", index)
		}
	case AssertDisjoint, AssertPushes:
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}

func (s *Scenario) start() time.Time {
	if s.Start.IsZero() {
		return DefaultStart
	}
	return s.Start
}

func (s *Scenario) manifest(step Step) ([]byte, error) {
	if step.Import != nil {
		return []byte(*step.Import), nil
	}
	p := step.ImportFile
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.dir, p)
	}
	return os.ReadFile(p)
}
