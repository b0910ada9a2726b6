package bowl

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a bowl.
type Status string

const (
	StatusPrepared Status = "PREPARED"
	StatusActive   Status = "ACTIVE"
	StatusReturned Status = "RETURNED"
)

// Severity classifies an outcome for presentation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// ScanKind distinguishes kitchen scans from return scans in the scan log.
type ScanKind string

const (
	ScanKitchen ScanKind = "kitchen"
	ScanReturn  ScanKind = "return"
)

// UnknownOperator is the operator recorded for bowls first seen in a manifest.
const UnknownOperator = "UNKNOWN"

// Record is one bowl in one of the three collections.
type Record struct {
	Code     string `json:"code"`
	Dish     string `json:"dish"`
	Operator string `json:"operator"`
	Company  string `json:"company"`
	Customer string `json:"customer"`

	CreatedAt   time.Time  `json:"createdAt"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
	ReturnedAt  *time.Time `json:"returnedAt,omitempty"`

	// ReturnedBy is the operator who scanned the bowl back in. Operator keeps
	// the preparer.
	ReturnedBy string `json:"returnedBy,omitempty"`

	// HadPreviousCustomer is set on Prepared records that evicted an Active one.
	HadPreviousCustomer bool `json:"hadPreviousCustomer,omitempty"`

	Status Status `json:"status"`
}

// clone returns a copy that shares no pointers with r.
func (r Record) clone() Record {
	out := r
	if r.ActivatedAt != nil {
		t := *r.ActivatedAt
		out.ActivatedAt = &t
	}
	if r.ReturnedAt != nil {
		t := *r.ReturnedAt
		out.ReturnedAt = &t
	}
	return out
}

// ScanEntry is one line of the append-only scan log. The transition logic
// never reads it back.
type ScanEntry struct {
	Code      string    `json:"code"`
	Kind      ScanKind  `json:"type"`
	Operator  string    `json:"user"`
	Dish      string    `json:"dish,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"message,omitempty"`

	HadPreviousCustomer bool `json:"hadPreviousCustomer,omitempty"`
}

// Meta is the contextual metadata a manifest attaches to a code.
// Empty fields mean "not supplied".
type Meta struct {
	Company  string `json:"company,omitempty"`
	Customer string `json:"customer,omitempty"`
	Dish     string `json:"dish,omitempty"`
}

// Snapshot is the whole replicated document. Field names match the keys of
// the remote document.
type Snapshot struct {
	Active       []Record          `json:"activeBowls"`
	Prepared     []Record          `json:"preparedBowls"`
	Returned     []Record          `json:"returnedBowls"`
	Scans        []ScanEntry       `json:"myScans"`
	History      []ScanEntry       `json:"scanHistory"`
	CustomerData []json.RawMessage `json:"customerData"`
	LastSync     *time.Time        `json:"lastSync,omitempty"`
}

// Normalize replaces nil lists with empty ones so that absent and empty
// collections serialize and compare identically.
func (s *Snapshot) Normalize() {
	if s.Active == nil {
		s.Active = []Record{}
	}
	if s.Prepared == nil {
		s.Prepared = []Record{}
	}
	if s.Returned == nil {
		s.Returned = []Record{}
	}
	if s.Scans == nil {
		s.Scans = []ScanEntry{}
	}
	if s.History == nil {
		s.History = []ScanEntry{}
	}
	if s.CustomerData == nil {
		s.CustomerData = []json.RawMessage{}
	}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Active:       cloneRecords(s.Active),
		Prepared:     cloneRecords(s.Prepared),
		Returned:     cloneRecords(s.Returned),
		Scans:        append([]ScanEntry{}, s.Scans...),
		History:      append([]ScanEntry{}, s.History...),
		CustomerData: make([]json.RawMessage, len(s.CustomerData)),
	}
	for i, raw := range s.CustomerData {
		out.CustomerData[i] = append(json.RawMessage(nil), raw...)
	}
	if s.LastSync != nil {
		t := *s.LastSync
		out.LastSync = &t
	}
	return out
}

// Len returns the number of bowls across all three collections.
func (s Snapshot) Len() int {
	return len(s.Active) + len(s.Prepared) + len(s.Returned)
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.clone()
	}
	return out
}

// Day truncates t to midnight in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day in the
// location of b.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
