package replica

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/bowltrack/internal/bowl"
)

// Defaults for Config fields left zero.
const (
	DefaultDebounce      = 500 * time.Millisecond
	DefaultPushTimeout   = 10 * time.Second
	DefaultRetryInterval = 250 * time.Millisecond
	DefaultMaxRetryWait  = 30 * time.Second
)

// Config tunes push and resubscribe behaviour.
type Config struct {
	// Debounce is the quiet period after the last Schedule before a push.
	Debounce time.Duration
	// PushTimeout bounds one debounced push including retries.
	PushTimeout time.Duration
	// PushRetries is the number of extra attempts after a failed write.
	// Zero means a single attempt.
	PushRetries int
	// RetryInterval is the first backoff interval for push retries and
	// resubscription.
	RetryInterval time.Duration
	// MaxRetryWait caps the resubscribe backoff.
	MaxRetryWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = DefaultPushTimeout
	}
	if c.PushRetries < 0 {
		c.PushRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.MaxRetryWait <= 0 {
		c.MaxRetryWait = DefaultMaxRetryWait
	}
	return c
}

// Source says where a cold-start snapshot came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
	SourceEmpty  Source = "empty"
)

// LoadResult is the outcome of a cold start.
type LoadResult struct {
	Snapshot bowl.Snapshot
	Source   Source
	// RemoteErr is set when the remote could not be read.
	RemoteErr error
}

// PushResult describes one push.
type PushResult struct {
	Digest   string
	At       time.Time
	Attempts int
	Err      error
}

// Replica replicates one terminal's state.
//
// Thread-safety: all methods are safe for concurrent use. Pushes are
// serialized so a terminal never races itself at the remote.
type Replica struct {
	remote Remote
	cache  Cache
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	onPush  func(PushResult)
	onState func(ConnState)

	// contacted is set once the remote has answered in this session.
	contacted atomic.Bool
	state     atomic.Int32

	mu      sync.Mutex
	pending *bowl.Snapshot
	timer   *time.Timer
	// inflight counts pushes started by Flush; idle is signalled on mu when
	// it drops to zero.
	inflight int
	idle     *sync.Cond

	pushMu sync.Mutex
}

// Option configures a Replica.
type Option func(*Replica)

// WithCache sets the local fallback cache.
func WithCache(c Cache) Option {
	return func(r *Replica) {
		r.cache = c
	}
}

// WithConfig sets timing parameters.
func WithConfig(cfg Config) Option {
	return func(r *Replica) {
		r.cfg = cfg
	}
}

// WithClock sets the time source used for push records.
func WithClock(now func() time.Time) Option {
	return func(r *Replica) {
		r.now = now
	}
}

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Replica) {
		r.logger = l
	}
}

// OnPush registers a callback invoked after every push attempt.
func OnPush(fn func(PushResult)) Option {
	return func(r *Replica) {
		r.onPush = fn
	}
}

// OnState registers a callback invoked on every connection state change.
func OnState(fn func(ConnState)) Option {
	return func(r *Replica) {
		r.onState = fn
	}
}

// New creates a Replica for remote.
func New(remote Remote, opts ...Option) *Replica {
	r := &Replica{
		remote: remote,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	r.idle = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	r.cfg = r.cfg.withDefaults()
	return r
}

// State returns the current subscription state.
func (r *Replica) State() ConnState {
	return ConnState(r.state.Load())
}

// Contacted reports whether the remote has answered in this session.
func (r *Replica) Contacted() bool {
	return r.contacted.Load()
}

func (r *Replica) setState(s ConnState) {
	if ConnState(r.state.Swap(int32(s))) == s {
		return
	}
	r.logger.Info("remote connection", "state", s)
	if r.onState != nil {
		r.onState(s)
	}
}

// Load performs the cold start. A reachable remote is authoritative even
// when it holds no document. The cache is consulted only if the remote has
// never answered in this session.
func (r *Replica) Load(ctx context.Context) LoadResult {
	snap, err := r.remote.Read(ctx)
	if err == nil {
		r.contacted.Store(true)
		out := bowl.Snapshot{}
		if snap != nil {
			out = snap.Clone()
		}
		out.Normalize()
		r.saveCache(ctx, out)
		return LoadResult{Snapshot: out, Source: SourceRemote}
	}

	remoteErr := bowl.WrapError(bowl.CodeRemoteUnavailable, "load from remote failed", err)
	r.logger.Warn("remote load failed", "error", err)

	if r.contacted.Load() || r.cache == nil {
		return LoadResult{Snapshot: emptySnapshot(), Source: SourceEmpty, RemoteErr: remoteErr}
	}

	cached, cerr := r.cache.Load(ctx)
	if cerr != nil {
		r.logger.Warn("local cache load failed", "error", cerr)
		return LoadResult{Snapshot: emptySnapshot(), Source: SourceEmpty, RemoteErr: remoteErr}
	}
	if cached == nil {
		return LoadResult{Snapshot: emptySnapshot(), Source: SourceEmpty, RemoteErr: remoteErr}
	}
	out := cached.Clone()
	out.Normalize()
	return LoadResult{Snapshot: out, Source: SourceCache, RemoteErr: remoteErr}
}

// Schedule queues snap for a debounced push. Each call restarts the quiet
// period and replaces any snapshot still waiting.
func (r *Replica) Schedule(snap bowl.Snapshot) {
	snap = snap.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = &snap
	if r.timer == nil {
		r.timer = time.AfterFunc(r.cfg.Debounce, r.flushTimer)
		return
	}
	r.timer.Reset(r.cfg.Debounce)
}

// Pending reports whether a scheduled push has not been sent yet.
func (r *Replica) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil
}

func (r *Replica) flushTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PushTimeout)
	defer cancel()
	// Errors are already logged and reported through OnPush.
	_ = r.Flush(ctx)
}

// Flush pushes the scheduled snapshot now, if there is one. With nothing
// scheduled it waits for a push the timer has already taken.
func (r *Replica) Flush(ctx context.Context) error {
	r.mu.Lock()
	snap := r.pending
	r.pending = nil
	if r.timer != nil {
		r.timer.Stop()
	}
	if snap == nil {
		for r.inflight > 0 {
			r.idle.Wait()
		}
		r.mu.Unlock()
		return nil
	}
	r.inflight++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inflight--
		if r.inflight == 0 {
			r.idle.Broadcast()
		}
		r.mu.Unlock()
	}()
	return r.Push(ctx, *snap).Err
}

// Push writes snap to the remote, retrying up to PushRetries times with
// exponential backoff. The snapshot is saved to the cache whether or not the
// write succeeded. Local state is never rolled back.
func (r *Replica) Push(ctx context.Context, snap bowl.Snapshot) PushResult {
	r.pushMu.Lock()
	defer r.pushMu.Unlock()

	snap = snap.Clone()
	snap.Normalize()
	digest, err := bowl.Digest(snap)
	if err != nil {
		r.logger.Error("snapshot digest failed", "error", err)
	}

	res := PushResult{Digest: digest, At: r.now()}
	op := func() error {
		res.Attempts++
		at, werr := r.remote.Write(ctx, snap)
		if werr != nil {
			r.logger.Debug("push attempt failed", "attempt", res.Attempts, "digest", digest, "error", werr)
			return werr
		}
		res.At = at
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInterval
	b.MaxInterval = r.cfg.MaxRetryWait
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.PushRetries)), ctx)

	if werr := backoff.Retry(op, policy); werr != nil {
		res.Err = bowl.WrapError(bowl.CodeRemoteUnavailable, "push failed", werr)
		r.logger.Warn("push failed", "digest", digest, "attempts", res.Attempts, "error", werr)
	} else {
		r.contacted.Store(true)
		at := res.At
		snap.LastSync = &at
		r.logger.Debug("push landed", "digest", digest, "attempts", res.Attempts)
	}

	r.saveCache(ctx, snap)
	if j, ok := r.cache.(Journal); ok {
		if jerr := j.RecordPush(ctx, digest, res.At, res.Err); jerr != nil {
			r.logger.Warn("push journal write failed", "error", jerr)
		}
	}
	if r.onPush != nil {
		r.onPush(res)
	}
	return res
}

// Subscribe runs the change listener until ctx is done. Every delivered
// snapshot, including the echo of this replica's own pushes, is saved to the
// cache and passed to onSnapshot, which is expected to replace local state
// wholesale. Transport failures move the state to Disconnected and the
// listener resubscribes with exponential backoff.
//
// Returns ctx.Err() when ctx is cancelled.
func (r *Replica) Subscribe(ctx context.Context, onSnapshot func(bowl.Snapshot)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInterval
	b.MaxInterval = r.cfg.MaxRetryWait
	b.MaxElapsedTime = 0

	defer r.setState(Disconnected)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.setState(Connecting)
		sub, err := r.remote.Subscribe(ctx)
		if err != nil {
			r.setState(Disconnected)
			r.logger.Warn("subscribe failed", "error", err)
			if werr := sleep(ctx, b.NextBackOff()); werr != nil {
				return werr
			}
			continue
		}

		r.contacted.Store(true)
		r.setState(Connected)
		b.Reset()

		err = r.listen(ctx, sub, onSnapshot)
		_ = sub.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.setState(Disconnected)
		r.logger.Warn("subscription lost", "error", err)
		if werr := sleep(ctx, b.NextBackOff()); werr != nil {
			return werr
		}
	}
}

func (r *Replica) listen(ctx context.Context, sub Subscription, onSnapshot func(bowl.Snapshot)) error {
	for {
		snap, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		snap.Normalize()
		r.saveCache(ctx, snap)
		onSnapshot(snap)
	}
}

func (r *Replica) saveCache(ctx context.Context, snap bowl.Snapshot) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Save(ctx, snap); err != nil {
		r.logger.Warn("local cache save failed", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d == backoff.Stop {
		return errors.New("resubscribe backoff exhausted")
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func emptySnapshot() bowl.Snapshot {
	s := bowl.Snapshot{}
	s.Normalize()
	return s
}
