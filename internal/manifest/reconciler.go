package manifest

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/bowltrack/internal/bowl"
)

// DefaultPrefixes is the import allow-list. Bulk import accepts only full
// vendor URLs, never bare tokens.
var DefaultPrefixes = []string{
	"http://vyt",
	"https://vyt",
	"http://vytal",
	"https://vytal",
}

// Result holds the import counters.
type Result struct {
	Created           int `json:"created"`
	Updated           int `json:"updated"`
	MovedFromPrepared int `json:"movedFromPrepared"`
	Rejected          int `json:"rejected"`
	Duplicates        int `json:"duplicates"`
}

// Applied returns the number of codes that reached the store.
func (r Result) Applied() int {
	return r.Created + r.Updated + r.MovedFromPrepared
}

// Plan is a validated, deduplicated manifest ready to apply.
type Plan struct {
	Entries    []Entry
	Rejected   []Entry
	Duplicates []Entry
}

// Reconciler applies manifests to a store.
type Reconciler struct {
	prefixes []string
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPrefixes replaces the allow-list. An empty list keeps the default.
func WithPrefixes(prefixes []string) Option {
	return func(r *Reconciler) {
		if len(prefixes) > 0 {
			r.prefixes = append([]string(nil), prefixes...)
		}
	}
}

// WithClock sets the time source for activation stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		prefixes: DefaultPrefixes,
		now:      time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Accepts reports whether code passes the allow-list.
func (r *Reconciler) Accepts(code string) bool {
	for _, p := range r.prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// Plan parses data and selects the entries to apply, without touching any
// store. The first occurrence of a code wins; later ones land in Duplicates.
func (r *Reconciler) Plan(data []byte) (Plan, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Plan{}, bowl.NewError(bowl.CodeEmptyInput, "", "manifest is empty")
	}

	root, err := Parse(data)
	if err != nil {
		return Plan{}, bowl.WrapError(bowl.CodeManifestParse, "invalid manifest JSON", err)
	}

	var plan Plan
	seen := make(map[string]bool)
	for _, e := range Flatten(root) {
		switch {
		case !r.Accepts(e.Code):
			plan.Rejected = append(plan.Rejected, e)
		case seen[e.Code]:
			plan.Duplicates = append(plan.Duplicates, e)
		default:
			seen[e.Code] = true
			plan.Entries = append(plan.Entries, e)
		}
	}

	if len(plan.Entries) == 0 {
		return plan, bowl.NewError(bowl.CodeNoCodesFound, "",
			"no bowl codes found (%d rejected)", len(plan.Rejected))
	}
	return plan, nil
}

// Apply imports data into store. On EMPTY_INPUT, MANIFEST_PARSE_ERROR or
// NO_CODES_FOUND the store is untouched.
func (r *Reconciler) Apply(store *bowl.Store, data []byte) (Result, error) {
	plan, err := r.Plan(data)
	if err != nil {
		return Result{Rejected: len(plan.Rejected), Duplicates: len(plan.Duplicates)}, err
	}
	return r.ApplyPlan(store, plan), nil
}

// ApplyPlan applies a plan produced by Plan in traversal order.
func (r *Reconciler) ApplyPlan(store *bowl.Store, plan Plan) Result {
	now := r.now()
	res := Result{
		Rejected:   len(plan.Rejected),
		Duplicates: len(plan.Duplicates),
	}

	for _, e := range plan.Entries {
		switch kind := store.Reconcile(e.Code, e.Meta, now); kind {
		case bowl.ReconcileCreated:
			res.Created++
		case bowl.ReconcileUpdated:
			res.Updated++
		case bowl.ReconcileMoved:
			res.MovedFromPrepared++
		}
	}

	r.logger.Info("manifest applied",
		"created", res.Created,
		"updated", res.Updated,
		"moved", res.MovedFromPrepared,
		"rejected", res.Rejected,
		"duplicates", res.Duplicates,
	)
	return res
}
