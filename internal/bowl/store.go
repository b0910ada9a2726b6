package bowl

import (
	"encoding/json"
	"sort"
	"time"
)

// collection is an insertion-ordered set of records keyed by code.
type collection struct {
	items []Record
	index map[string]int
}

func newCollection(records []Record) collection {
	c := collection{
		items: make([]Record, 0, len(records)),
		index: make(map[string]int, len(records)),
	}
	for _, r := range records {
		c.put(r.clone())
	}
	return c
}

func (c *collection) get(code string) (Record, bool) {
	i, ok := c.index[code]
	if !ok {
		return Record{}, false
	}
	return c.items[i], true
}

// put inserts r, or replaces the existing record for r.Code in place.
func (c *collection) put(r Record) {
	if i, ok := c.index[r.Code]; ok {
		c.items[i] = r
		return
	}
	c.index[r.Code] = len(c.items)
	c.items = append(c.items, r)
}

func (c *collection) remove(code string) (Record, bool) {
	i, ok := c.index[code]
	if !ok {
		return Record{}, false
	}
	removed := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, code)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].Code] = j
	}
	return removed, true
}

func (c *collection) list() []Record {
	return cloneRecords(c.items)
}

func (c *collection) filter(keep func(Record) bool) int {
	removed := 0
	kept := c.items[:0]
	for _, r := range c.items {
		if keep(r) {
			kept = append(kept, r)
			continue
		}
		removed++
	}
	c.items = kept
	c.index = make(map[string]int, len(kept))
	for i, r := range kept {
		c.index[r.Code] = i
	}
	return removed
}

// ReconcileKind reports what Reconcile did with a manifest entry.
type ReconcileKind int

const (
	// ReconcileCreated means the code was unknown and a new Active record
	// was created.
	ReconcileCreated ReconcileKind = iota + 1
	// ReconcileUpdated means an Active record had its metadata refreshed.
	ReconcileUpdated
	// ReconcileMoved means a Prepared record moved to Active.
	ReconcileMoved
)

func (k ReconcileKind) String() string {
	switch k {
	case ReconcileCreated:
		return "created"
	case ReconcileUpdated:
		return "updated"
	case ReconcileMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// Store is the authoritative bowl record for one terminal.
type Store struct {
	prepared collection
	active   collection
	returned collection

	scans        []ScanEntry
	history      []ScanEntry
	customerData []json.RawMessage
	lastSync     *time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.Replace(Snapshot{})
	return s
}

// Prepare applies the kitchen transition: the code is evicted from Active
// (customer reset) and Returned, then upserted into Prepared. Scanning the same
// code twice overwrites the earlier Prepared record.
func (s *Store) Prepare(code, dish, operator string, now time.Time) (Record, bool) {
	_, hadCustomer := s.active.remove(code)
	s.returned.remove(code)

	rec := Record{
		Code:                code,
		Dish:                dish,
		Operator:            operator,
		CreatedAt:           now,
		HadPreviousCustomer: hadCustomer,
		Status:              StatusPrepared,
	}
	s.prepared.put(rec)
	return rec.clone(), hadCustomer
}

// Return applies the return transition. The record is taken from Prepared,
// falling back to Active. If the code is in neither, the store is untouched
// and a NOT_PREPARED error is returned.
func (s *Store) Return(code, operator string, now time.Time) (Record, error) {
	src, ok := s.prepared.remove(code)
	if !ok {
		src, ok = s.active.remove(code)
	}
	if !ok {
		return Record{}, NewError(CodeNotPrepared, code, "bowl not prepared or active")
	}

	returnedAt := now
	rec := src.clone()
	rec.ReturnedAt = &returnedAt
	rec.ReturnedBy = operator
	rec.HadPreviousCustomer = false
	rec.Status = StatusReturned
	s.returned.put(rec)
	return rec.clone(), nil
}

// Reconcile applies one manifest entry:
//   - Prepared: moved to Active, manifest metadata overriding the Prepared
//     values only where supplied, createdAt preserved.
//   - Active: non-empty manifest fields overwrite, blank ones keep the
//     existing value.
//   - otherwise: a new Active record owned by UnknownOperator, created today.
func (s *Store) Reconcile(code string, meta Meta, now time.Time) ReconcileKind {
	activatedAt := now

	if pb, ok := s.prepared.remove(code); ok {
		rec := pb.clone()
		rec.Company = pick(meta.Company, rec.Company)
		rec.Customer = pick(meta.Customer, rec.Customer)
		rec.Dish = pick(meta.Dish, rec.Dish)
		rec.ActivatedAt = &activatedAt
		rec.HadPreviousCustomer = false
		rec.Status = StatusActive
		s.active.put(rec)
		return ReconcileMoved
	}

	if existing, ok := s.active.get(code); ok {
		existing.Company = pick(meta.Company, existing.Company)
		existing.Customer = pick(meta.Customer, existing.Customer)
		existing.Dish = pick(meta.Dish, existing.Dish)
		s.active.put(existing)
		return ReconcileUpdated
	}

	s.returned.remove(code)
	s.active.put(Record{
		Code:        code,
		Dish:        meta.Dish,
		Operator:    UnknownOperator,
		Company:     meta.Company,
		Customer:    meta.Customer,
		CreatedAt:   Day(now),
		ActivatedAt: &activatedAt,
		Status:      StatusActive,
	})
	return ReconcileCreated
}

// AppendScan appends e to the scan log and prepends it to the history list.
func (s *Store) AppendScan(e ScanEntry) {
	s.scans = append(s.scans, e)
	s.history = append([]ScanEntry{e}, s.history...)
}

// ResetPreparedOn removes every Prepared record created on the same calendar
// day as now and returns how many were removed.
func (s *Store) ResetPreparedOn(now time.Time) int {
	return s.prepared.filter(func(r Record) bool {
		return !SameDay(r.CreatedAt, now)
	})
}

// Find looks code up in all three collections.
func (s *Store) Find(code string) (Record, bool) {
	for _, c := range []*collection{&s.prepared, &s.active, &s.returned} {
		if r, ok := c.get(code); ok {
			return r.clone(), true
		}
	}
	return Record{}, false
}

// Prepared returns a copy of the Prepared collection in insertion order.
func (s *Store) Prepared() []Record { return s.prepared.list() }

// Active returns a copy of the Active collection in insertion order.
func (s *Store) Active() []Record { return s.active.list() }

// Returned returns a copy of the Returned collection in insertion order.
func (s *Store) Returned() []Record { return s.returned.list() }

// Scans returns a copy of the chronological scan log.
func (s *Store) Scans() []ScanEntry { return append([]ScanEntry{}, s.scans...) }

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Active:       s.active.list(),
		Prepared:     s.prepared.list(),
		Returned:     s.returned.list(),
		Scans:        s.scans,
		History:      s.history,
		CustomerData: s.customerData,
		LastSync:     s.lastSync,
	}
	return snap.Clone()
}

// Replace swaps the whole state for snap. No merge takes place; anything not
// in snap is gone afterwards.
func (s *Store) Replace(snap Snapshot) {
	snap = snap.Clone()
	s.prepared = newCollection(snap.Prepared)
	s.active = newCollection(snap.Active)
	s.returned = newCollection(snap.Returned)
	s.scans = snap.Scans
	s.history = snap.History
	s.customerData = snap.CustomerData
	s.lastSync = snap.LastSync
}

// Overlaps returns codes that appear in more than one collection, sorted.
// Local transitions never produce overlaps; a replicated snapshot written by a
// faulty peer can.
func (s *Store) Overlaps() []string {
	seen := make(map[string]int)
	for _, c := range []*collection{&s.prepared, &s.active, &s.returned} {
		for code := range c.index {
			seen[code]++
		}
	}
	var out []string
	for code, n := range seen {
		if n > 1 {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

func pick(incoming, existing string) string {
	if incoming != "" {
		return incoming
	}
	return existing
}
