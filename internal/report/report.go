package report

import (
	"math"
	"sort"
	"time"

	"github.com/roach88/bowltrack/internal/bowl"
)

// CycleHour is the hour at which the overnight prep cycle rolls over.
const CycleHour = 22

// Row is one line of an export.
type Row struct {
	Code     string      `json:"code"`
	Dish     string      `json:"dish"`
	Company  string      `json:"company"`
	Customer string      `json:"customer"`
	Operator string      `json:"operator"`
	Status   bowl.Status `json:"status"`

	// Date is the creation date for active rows and the return time for
	// returned rows.
	Date       time.Time `json:"date"`
	ReturnedBy string    `json:"returnedBy,omitempty"`

	// Days is the number of started days since Date.
	Days    int  `json:"days"`
	Overdue bool `json:"overdue"`
}

// Counts are the dashboard counters.
type Counts struct {
	Active        int `json:"active"`
	PreparedToday int `json:"preparedToday"`
	ReturnedToday int `json:"returnedToday"`
	MyScansToday  int `json:"myScansToday"`
}

// PrepLine is one (dish, operator) bucket of the overnight report.
type PrepLine struct {
	Dish     string `json:"dish"`
	Operator string `json:"operator"`
	Count    int    `json:"count"`
}

// Overnight summarizes kitchen scans in one prep cycle.
type Overnight struct {
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
	Lines []PrepLine `json:"lines"`
	Total int        `json:"total"`
}

// Reporter builds reports in one time zone.
type Reporter struct {
	rule *Rule
	now  func() time.Time
	loc  *time.Location
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithRule sets the overdue rule.
func WithRule(r *Rule) Option {
	return func(rep *Reporter) {
		rep.rule = r
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(rep *Reporter) {
		rep.now = now
	}
}

// WithLocation sets the zone used for "today" and the prep cycle.
func WithLocation(loc *time.Location) Option {
	return func(rep *Reporter) {
		rep.loc = loc
	}
}

// New creates a Reporter. Defaults: DefaultOverdueRule, time.Now, local time.
func New(opts ...Option) *Reporter {
	r := &Reporter{now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(r)
	}
	if r.rule == nil {
		r.rule = MustCompileRule(DefaultOverdueRule)
	}
	return r
}

func (r *Reporter) today() time.Time {
	return r.now().In(r.loc)
}

// ActiveRows exports the Active collection. Days counts from the creation
// date.
func (r *Reporter) ActiveRows(snap bowl.Snapshot) ([]Row, error) {
	now := r.today()
	rows := make([]Row, 0, len(snap.Active))
	for _, rec := range snap.Active {
		row := newRow(rec, rec.CreatedAt, now)
		if err := r.flag(&row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReturnedRows exports the Returned collection. Days counts from the return
// time.
func (r *Reporter) ReturnedRows(snap bowl.Snapshot) ([]Row, error) {
	now := r.today()
	rows := make([]Row, 0, len(snap.Returned))
	for _, rec := range snap.Returned {
		date := rec.CreatedAt
		if rec.ReturnedAt != nil {
			date = *rec.ReturnedAt
		}
		row := newRow(rec, date, now)
		row.ReturnedBy = rec.ReturnedBy
		if err := r.flag(&row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *Reporter) flag(row *Row) error {
	overdue, err := r.rule.Match(*row)
	if err != nil {
		return err
	}
	row.Overdue = overdue
	return nil
}

func newRow(rec bowl.Record, date, now time.Time) Row {
	return Row{
		Code:     rec.Code,
		Dish:     rec.Dish,
		Company:  rec.Company,
		Customer: rec.Customer,
		Operator: rec.Operator,
		Status:   rec.Status,
		Date:     date.In(now.Location()),
		Days:     startedDays(date, now),
	}
}

// startedDays is ceil((now-date)/24h), never negative.
func startedDays(date, now time.Time) int {
	d := now.Sub(date)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// Counts computes the dashboard counters. operator selects whose scans count
// towards MyScansToday.
func (r *Reporter) Counts(snap bowl.Snapshot, operator string) Counts {
	now := r.today()
	c := Counts{Active: len(snap.Active)}
	for _, rec := range snap.Prepared {
		if bowl.SameDay(rec.CreatedAt, now) {
			c.PreparedToday++
		}
	}
	for _, rec := range snap.Returned {
		if rec.ReturnedAt != nil && bowl.SameDay(*rec.ReturnedAt, now) {
			c.ReturnedToday++
		}
	}
	for _, s := range snap.Scans {
		if s.Operator == operator && bowl.SameDay(s.Timestamp, now) {
			c.MyScansToday++
		}
	}
	return c
}

// CycleAt returns the prep cycle containing t: from the last CycleHour:00 at
// or before t up to the next one.
func CycleAt(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, CycleHour, 0, 0, 0, t.Location())
	if t.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start, start.AddDate(0, 0, 1)
}

// Overnight counts kitchen scans per dish and operator in the current prep
// cycle. Lines are sorted by dish, then operator.
func (r *Reporter) Overnight(snap bowl.Snapshot) Overnight {
	start, end := CycleAt(r.today())
	out := Overnight{Start: start, End: end, Lines: []PrepLine{}}

	index := make(map[[2]string]int)
	for _, s := range snap.Scans {
		if s.Kind != bowl.ScanKitchen || s.Timestamp.Before(start) || !s.Timestamp.Before(end) {
			continue
		}
		key := [2]string{orDash(s.Dish), orDash(s.Operator)}
		i, ok := index[key]
		if !ok {
			i = len(out.Lines)
			index[key] = i
			out.Lines = append(out.Lines, PrepLine{Dish: key[0], Operator: key[1]})
		}
		out.Lines[i].Count++
		out.Total++
	}

	sort.Slice(out.Lines, func(i, j int) bool {
		if out.Lines[i].Dish != out.Lines[j].Dish {
			return out.Lines[i].Dish < out.Lines[j].Dish
		}
		return out.Lines[i].Operator < out.Lines[j].Operator
	})
	return out
}

func orDash(s string) string {
	if s == "" {
		return "--"
	}
	return s
}
