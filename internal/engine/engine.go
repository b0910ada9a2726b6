package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/code"
	"github.com/roach88/bowltrack/internal/manifest"
	"github.com/roach88/bowltrack/internal/scan"
)

// ErrStopped is returned for requests submitted after Run has returned, or
// still queued when it did.
var ErrStopped = errors.New("engine stopped")

// Scheduler receives a snapshot after every local mutation.
// *replica.Replica implements it.
type Scheduler interface {
	Schedule(snap bowl.Snapshot)
}

// Result is the outcome of one processed event. Only the fields for Type are
// set.
type Result struct {
	OpID string
	Seq  int64
	Type EventType

	Scan     scan.Outcome
	Import   manifest.Result
	Reset    int
	Session  scan.Session
	Snapshot bowl.Snapshot

	// Mutated is true when the event changed local state and a push was
	// scheduled.
	Mutated bool
	Err     error
}

// Engine owns a bowl.Store and serializes every access to it.
//
// Thread-safety: Run must be called from exactly one goroutine. All other
// methods are safe from any goroutine.
type Engine struct {
	store      *bowl.Store
	processor  *scan.Processor
	reconciler *manifest.Reconciler
	scheduler  Scheduler

	queue  *eventQueue
	clock  *Clock
	ids    OpIDGenerator
	now    func() time.Time
	logger *slog.Logger

	validator code.Validator
	prefixes  []string
	observer  func(Result)

	// session is read and written only by the Run goroutine.
	session scan.Session

	done chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithScheduler sets where snapshots go after a mutation.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		e.scheduler = s
	}
}

// WithClock sets the wall-clock source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithOpIDs sets the operation ID generator. Defaults to UUIDv7Generator.
func WithOpIDs(g OpIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithValidator sets the code validator used for scans.
func WithValidator(v code.Validator) Option {
	return func(e *Engine) {
		e.validator = v
	}
}

// WithImportPrefixes sets the manifest allow-list.
func WithImportPrefixes(prefixes []string) Option {
	return func(e *Engine) {
		e.prefixes = prefixes
	}
}

// WithSession sets the session in effect before the first SetSession.
func WithSession(s scan.Session) Option {
	return func(e *Engine) {
		e.session = s
	}
}

// WithObserver registers fn to be called on the Run goroutine after every
// processed event. fn must not call back into the Engine synchronously.
func WithObserver(fn func(Result)) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// New creates an Engine around store. The caller must not touch store
// directly once Run has started.
func New(store *bowl.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		queue:  newEventQueue(),
		clock:  NewClock(),
		ids:    UUIDv7Generator{},
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.processor = scan.NewProcessor(store,
		scan.WithClock(e.now),
		scan.WithValidator(e.validator),
		scan.WithLogger(e.logger),
	)
	rOpts := []manifest.Option{manifest.WithClock(e.now), manifest.WithLogger(e.logger)}
	if e.prefixes != nil {
		rOpts = append(rOpts, manifest.WithPrefixes(e.prefixes))
	}
	e.reconciler = manifest.NewReconciler(rOpts...)
	return e
}

// Run processes events until ctx is cancelled or Stop is called. Requests
// still queued when it returns fail with ErrStopped.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	defer close(e.done)
	defer e.drain()

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			e.dispatch(ev)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Stop, so this case keeps
			// firing once the queue is closed and drained.
			if e.queue.Len() == 0 && e.queue.Closed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run finishes the events already queued and returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Done is closed when Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) drain() {
	for {
		ev, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		if ev.reply != nil {
			ev.reply <- Result{Type: ev.Type, Err: ErrStopped}
		}
	}
}

func (e *Engine) dispatch(ev Event) {
	res := e.process(ev)
	if res.Err != nil && res.Type != EventScan {
		e.logger.Warn("event failed",
			"op", res.OpID,
			"seq", res.Seq,
			"event", res.Type,
			"error", res.Err,
		)
	}
	if res.Mutated && e.scheduler != nil {
		e.scheduler.Schedule(e.store.Snapshot())
	}
	if e.observer != nil {
		e.observer(res)
	}
	if ev.reply != nil {
		ev.reply <- res
	}
}

// process applies one event. Called only from the Run goroutine.
func (e *Engine) process(ev Event) Result {
	res := Result{
		OpID: e.ids.Generate(),
		Seq:  e.clock.Next(),
		Type: ev.Type,
	}
	log := e.logger.With("op", res.OpID, "seq", res.Seq)

	switch ev.Type {
	case EventScan:
		out := e.processor.Process(ev.Raw, e.session)
		res.Scan = out
		res.Err = out.Err
		res.Mutated = out.OK()
		log.Info("scan",
			"code", out.Code,
			"mode", e.session.Mode,
			"severity", out.Severity,
			"message", out.Message,
		)

	case EventImport:
		imported, err := e.reconciler.Apply(e.store, ev.Manifest)
		res.Import = imported
		res.Err = err
		res.Mutated = err == nil && imported.Applied() > 0
		if err == nil {
			log.Info("import",
				"created", imported.Created,
				"updated", imported.Updated,
				"moved", imported.MovedFromPrepared,
				"rejected", imported.Rejected,
				"duplicates", imported.Duplicates,
			)
		}

	case EventReset:
		res.Reset = e.store.ResetPreparedOn(e.now())
		res.Mutated = res.Reset > 0
		log.Info("reset prepared", "removed", res.Reset)

	case EventSetSession:
		e.session = ev.Session
		res.Session = ev.Session
		log.Debug("session changed", "mode", ev.Session.Mode, "operator", ev.Session.Operator)

	case EventRemote:
		if ev.Snapshot == nil {
			res.Err = fmt.Errorf("remote event without snapshot")
			break
		}
		// Echoes of this terminal's own pushes are applied too: a push that
		// lands after a peer's snapshot is the newer truth.
		changed := !sameDocument(e.store.Snapshot(), *ev.Snapshot)
		e.store.Replace(*ev.Snapshot)
		log.Info("remote snapshot applied", "bowls", ev.Snapshot.Len(), "changed", changed)
		if overlaps := e.store.Overlaps(); len(overlaps) > 0 {
			log.Warn("remote snapshot has codes in more than one collection", "codes", overlaps)
		}

	case EventRead:
		res.Snapshot = e.store.Snapshot()
		res.Session = e.session

	default:
		res.Err = fmt.Errorf("unknown event type: %d", ev.Type)
	}

	return res
}

// submit enqueues ev and waits for its Result.
func (e *Engine) submit(ctx context.Context, ev Event) (Result, error) {
	ev.reply = make(chan Result, 1)
	if !e.queue.Enqueue(ev) {
		return Result{}, ErrStopped
	}

	select {
	case res := <-ev.reply:
		if errors.Is(res.Err, ErrStopped) {
			return res, ErrStopped
		}
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Scan applies raw under the current session and returns the outcome.
// Validation and transition failures are reported in the Outcome, not as
// an error; the error is non-nil only if the request was not processed.
func (e *Engine) Scan(ctx context.Context, raw string) (scan.Outcome, error) {
	res, err := e.submit(ctx, Event{Type: EventScan, Raw: raw})
	if err != nil {
		return scan.Outcome{}, err
	}
	return res.Scan, nil
}

// Import reconciles a manifest. The store is untouched when it fails.
func (e *Engine) Import(ctx context.Context, data []byte) (manifest.Result, error) {
	res, err := e.submit(ctx, Event{Type: EventImport, Manifest: data})
	if err != nil {
		return manifest.Result{}, err
	}
	return res.Import, res.Err
}

// ResetToday removes Prepared records created today and returns how many.
func (e *Engine) ResetToday(ctx context.Context) (int, error) {
	res, err := e.submit(ctx, Event{Type: EventReset})
	if err != nil {
		return 0, err
	}
	return res.Reset, nil
}

// SetSession replaces the session used for later scans. Scans submitted
// before it still use the previous session.
func (e *Engine) SetSession(ctx context.Context, s scan.Session) error {
	_, err := e.submit(ctx, Event{Type: EventSetSession, Session: s})
	return err
}

// Session returns the current session.
func (e *Engine) Session(ctx context.Context) (scan.Session, error) {
	res, err := e.submit(ctx, Event{Type: EventRead})
	if err != nil {
		return scan.Session{}, err
	}
	return res.Session, nil
}

// Snapshot returns a deep copy of the state after every earlier request.
func (e *Engine) Snapshot(ctx context.Context) (bowl.Snapshot, error) {
	res, err := e.submit(ctx, Event{Type: EventRead})
	if err != nil {
		return bowl.Snapshot{}, err
	}
	return res.Snapshot, nil
}

// ApplyRemote queues a replicated snapshot without waiting for it. Its
// signature matches the callback of replica.Replica.Subscribe. Snapshots
// arriving after the engine stopped are dropped.
func (e *Engine) ApplyRemote(snap bowl.Snapshot) {
	snap = snap.Clone()
	if !e.queue.Enqueue(Event{Type: EventRemote, Snapshot: &snap}) {
		e.logger.Debug("remote snapshot dropped: engine stopped")
	}
}

// sameDocument reports whether a and b hold the same collections. lastSync
// is ignored.
func sameDocument(a, b bowl.Snapshot) bool {
	a.Normalize()
	b.Normalize()
	da, err := bowl.Digest(a)
	if err != nil {
		return false
	}
	db, err := bowl.Digest(b)
	return err == nil && da == db
}
