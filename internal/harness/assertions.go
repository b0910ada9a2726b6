package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/bowltrack/internal/bowl"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s%s\n", ev.Seq, ev.Type, ev.Code, describe(ev))
		}
	}
	return buf.String()
}

func describe(ev TraceEvent) string {
	switch {
	case ev.Error != "":
		return " " + ev.Error
	case ev.Status != "":
		return " -> " + ev.Status
	case ev.Mode != "":
		return fmt.Sprintf("%s/%s", ev.Mode, ev.Operator)
	}
	return ""
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertCount:
		return assertCount(result, a)
	case AssertRecord:
		return assertRecord(result, a)
	case AssertAbsent:
		return assertAbsent(result, a)
	case AssertDisjoint:
		return assertDisjoint(result)
	case AssertPushes:
		if result.Pushes != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d pushes", a.Count),
				Actual:   fmt.Sprintf("%d pushes", result.Pushes),
				Trace:    result.Trace,
			}
		}
		return nil
	case AssertTraceCount:
		n := 0
		for _, ev := range result.Trace {
			if ev.Type == a.Event {
				n++
			}
		}
		if n != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d %s events", a.Count, a.Event),
				Actual:   fmt.Sprintf("%d", n),
				Trace:    result.Trace,
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func collectionLen(snap bowl.Snapshot, name string) int {
	switch name {
	case "prepared":
		return len(snap.Prepared)
	case "active":
		return len(snap.Active)
	case "returned":
		return len(snap.Returned)
	case "scans":
		return len(snap.Scans)
	case "history":
		return len(snap.History)
	}
	return -1
}

func records(snap bowl.Snapshot) map[string][]bowl.Record {
	return map[string][]bowl.Record{
		"prepared": snap.Prepared,
		"active":   snap.Active,
		"returned": snap.Returned,
	}
}

func assertCount(result *Result, a Assertion) error {
	if got := collectionLen(result.Final, a.Collection); got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d records in %s", a.Count, a.Collection),
			Actual:   fmt.Sprintf("%d", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func find(snap bowl.Snapshot, code string) (string, bowl.Record, bool) {
	for _, name := range []string{"prepared", "active", "returned"} {
		for _, r := range records(snap)[name] {
			if r.Code == code {
				return name, r, true
			}
		}
	}
	return "", bowl.Record{}, false
}

func assertRecord(result *Result, a Assertion) error {
	where, rec, ok := find(result.Final, a.Code)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("record %s", a.Code),
			Actual:   "not found",
			Trace:    result.Trace,
		}
	}
	if a.Collection != "" && where != a.Collection {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s in %s", a.Code, a.Collection),
			Actual:   fmt.Sprintf("in %s", where),
			Trace:    result.Trace,
		}
	}

	fields := recordFields(rec)
	for key, want := range a.Expect {
		got, known := fields[key]
		if !known {
			return fmt.Errorf("record %s: unknown field %q", a.Code, key)
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %v", a.Code, key, want),
				Actual:   fmt.Sprintf("%v", got),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

func recordFields(r bowl.Record) map[string]any {
	return map[string]any{
		"dish":                  r.Dish,
		"operator":              r.Operator,
		"company":               r.Company,
		"customer":              r.Customer,
		"status":                string(r.Status),
		"returned_by":           r.ReturnedBy,
		"had_previous_customer": r.HadPreviousCustomer,
		"activated":             r.ActivatedAt != nil,
		"returned":              r.ReturnedAt != nil,
	}
}

func assertAbsent(result *Result, a Assertion) error {
	if where, _, ok := find(result.Final, a.Code); ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s absent", a.Code),
			Actual:   fmt.Sprintf("in %s", where),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertDisjoint(result *Result) error {
	seen := make(map[string]string)
	for _, name := range []string{"prepared", "active", "returned"} {
		for _, r := range records(result.Final)[name] {
			if prev, dup := seen[r.Code]; dup {
				return &AssertionError{
					Type:     AssertDisjoint,
					Expected: "every code in at most one collection",
					Actual:   fmt.Sprintf("%s in %s and %s", r.Code, prev, name),
					Trace:    result.Trace,
				}
			}
			seen[r.Code] = name
		}
	}
	return nil
}
