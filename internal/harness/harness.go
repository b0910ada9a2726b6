package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/engine"
	"github.com/roach88/bowltrack/internal/manifest"
	"github.com/roach88/bowltrack/internal/scan"
	"github.com/roach88/bowltrack/internal/testutil"
)

// Harness drives one scenario through an engine.
type Harness struct {
	scenario *Scenario
	engine   *engine.Engine
	clock    *testutil.FakeClock
	logger   *slog.Logger

	pushes pushCounter

	mu   sync.Mutex
	last engine.Result
}

// pushCounter stands in for the replica.
type pushCounter struct {
	mu sync.Mutex
	n  int
}

func (p *pushCounter) Schedule(bowl.Snapshot) {
	p.mu.Lock()
	p.n++
	p.mu.Unlock()
}

func (p *pushCounter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

// Run executes scenario on a fresh store and evaluates its assertions.
// The returned error is for harness failures; scenario failures are in
// Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &Harness{
		scenario: scenario,
		clock:    testutil.NewFakeClock(scenario.start()),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	opts := []engine.Option{
		engine.WithClock(h.clock.Now),
		engine.WithOpIDs(testutil.NewSequenceGenerator("op")),
		engine.WithScheduler(&h.pushes),
		engine.WithLogger(h.logger),
		engine.WithObserver(h.observe),
	}
	if scenario.Prefixes != nil {
		opts = append(opts, engine.WithImportPrefixes(scenario.Prefixes))
	}
	h.engine = engine.New(bowl.NewStore(), opts...)

	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	final, err := h.engine.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read final state: %w", err)
	}
	result.Final = final
	result.Pushes = h.pushes.count()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) observe(r engine.Result) {
	h.mu.Lock()
	h.last = r
	h.mu.Unlock()
}

// lastResult is the Result of the most recent request. Requests are
// synchronous, so it belongs to the call that just returned.
func (h *Harness) lastResult() engine.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	switch step.kind() {
	case "advance":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		return nil

	case "session":
		if err := h.engine.SetSession(ctx, *step.Session); err != nil {
			return err
		}
		ev := h.event()
		ev.Mode = string(step.Session.Mode)
		ev.Operator = step.Session.Operator
		result.Trace = append(result.Trace, ev)

	case "scan":
		out, err := h.engine.Scan(ctx, *step.Scan)
		if err != nil {
			return err
		}
		ev := h.event()
		ev.Code = out.Code
		ev.Status = string(out.Status)
		ev.Severity = string(out.Severity)
		ev.Message = out.Message
		ev.CustomerReset = out.CustomerReset
		ev.Error = string(out.ErrorCode())
		result.Trace = append(result.Trace, ev)
		checkScan(i, step.Expect, out, result)

	case "import":
		data, err := h.scenario.manifest(step)
		if err != nil {
			return err
		}
		res, importErr := h.engine.Import(ctx, data)
		ev := h.event()
		if importErr != nil {
			ev.Error = string(bowl.CodeOf(importErr))
		} else {
			ev.Counts = importCounts(res)
		}
		result.Trace = append(result.Trace, ev)
		checkImport(i, step.Expect, res, importErr, result)

	case "reset":
		n, err := h.engine.ResetToday(ctx)
		if err != nil {
			return err
		}
		ev := h.event()
		ev.Counts = map[string]int{"removed": n}
		result.Trace = append(result.Trace, ev)
		if step.Expect != nil && step.Expect.Removed != nil && *step.Expect.Removed != n {
			result.AddError(fmt.Sprintf("steps[%d]: removed = %d, want %d", i, n, *step.Expect.Removed))
		}

	default:
		return fmt.Errorf("step has no single action")
	}

	h.logger.Debug("step completed", "step", i, "kind", step.kind())
	return nil
}

func (h *Harness) event() TraceEvent {
	r := h.lastResult()
	return TraceEvent{Seq: r.Seq, Op: r.OpID, Type: r.Type.String()}
}

func importCounts(r manifest.Result) map[string]int {
	return map[string]int{
		"created":    r.Created,
		"updated":    r.Updated,
		"moved":      r.MovedFromPrepared,
		"rejected":   r.Rejected,
		"duplicates": r.Duplicates,
	}
}

func checkScan(i int, want *Expect, out scan.Outcome, result *Result) {
	if want == nil {
		return
	}
	fail := func(field string, got, exp any) {
		result.AddError(fmt.Sprintf("steps[%d]: %s = %v, want %v", i, field, got, exp))
	}
	if want.Severity != "" && string(out.Severity) != want.Severity {
		fail("severity", out.Severity, want.Severity)
	}
	if want.Status != "" && string(out.Status) != want.Status {
		fail("status", out.Status, want.Status)
	}
	if want.Message != "" && out.Message != want.Message {
		fail("message", out.Message, want.Message)
	}
	if want.Error != "" && string(out.ErrorCode()) != want.Error {
		fail("error", out.ErrorCode(), want.Error)
	}
	if want.CustomerReset != nil && out.CustomerReset != *want.CustomerReset {
		fail("customer_reset", out.CustomerReset, *want.CustomerReset)
	}
}

func checkImport(i int, want *Expect, res manifest.Result, err error, result *Result) {
	if want == nil {
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: unexpected import error: %v", i, err))
		}
		return
	}
	if got := string(bowl.CodeOf(err)); got != want.Error {
		result.AddError(fmt.Sprintf("steps[%d]: error = %q, want %q", i, got, want.Error))
	}
	for _, c := range []struct {
		name string
		got  int
		want *int
	}{
		{"created", res.Created, want.Created},
		{"updated", res.Updated, want.Updated},
		{"moved", res.MovedFromPrepared, want.Moved},
		{"rejected", res.Rejected, want.Rejected},
		{"duplicates", res.Duplicates, want.Duplicates},
	} {
		if c.want != nil && c.got != *c.want {
			result.AddError(fmt.Sprintf("steps[%d]: %s = %d, want %d", i, c.name, c.got, *c.want))
		}
	}
}
