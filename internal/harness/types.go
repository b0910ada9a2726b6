package harness

import "github.com/roach88/bowltrack/internal/bowl"

// TraceEvent is one processed engine event.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Op   string `json:"op"`
	Type string `json:"type"`

	// Session events.
	Mode     string `json:"mode,omitempty"`
	Operator string `json:"operator,omitempty"`

	// Scan events.
	Code          string `json:"code,omitempty"`
	Status        string `json:"status,omitempty"`
	Severity      string `json:"severity,omitempty"`
	Message       string `json:"message,omitempty"`
	CustomerReset bool   `json:"customer_reset,omitempty"`

	// Error is the error code of a failed scan or import.
	Error string `json:"error,omitempty"`

	// Counts carries import and reset tallies.
	Counts map[string]int `json:"counts,omitempty"`
}

// Result is the outcome of one scenario.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Pushes is the number of snapshots scheduled for replication.
	Pushes int `json:"pushes"`

	// Final is the state after the last step.
	Final bowl.Snapshot `json:"-"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
