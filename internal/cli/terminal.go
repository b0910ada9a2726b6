package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/config"
	"github.com/roach88/bowltrack/internal/engine"
	"github.com/roach88/bowltrack/internal/pgremote"
	"github.com/roach88/bowltrack/internal/replica"
	"github.com/roach88/bowltrack/internal/report"
	"github.com/roach88/bowltrack/internal/scan"
	"github.com/roach88/bowltrack/internal/store"
)

// Terminal is one wired bowl terminal: local cache, replica and engine.
type Terminal struct {
	Config  config.Config
	Engine  *engine.Engine
	Replica *replica.Replica
	Loaded  replica.LoadResult

	cache   *store.Store
	pool    *pgxpool.Pool
	logger  *slog.Logger
	now     func() time.Time
	started bool
}

// terminalOptions are hooks used by tests.
type terminalOptions struct {
	session scan.Session
	remote  replica.Remote
	now     func() time.Time
	onPush  func(replica.PushResult)
}

// openTerminal opens the cache, connects the remote and performs the cold
// start. The engine is created but not running.
func openTerminal(ctx context.Context, cfg config.Config, logger *slog.Logger, topts terminalOptions) (*Terminal, error) {
	base := topts.now
	if base == nil {
		base = time.Now
	}
	loc := cfg.Location()
	now := func() time.Time { return base().In(loc) }

	cache, err := store.Open(cfg.CachePath, store.WithClock(now))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open local cache", err)
	}
	t := &Terminal{Config: cfg, cache: cache, logger: logger, now: now}

	remote := topts.remote
	if remote == nil {
		remote, err = t.connect(ctx, now)
		if err != nil {
			_ = t.Close(ctx)
			return nil, err
		}
	}

	ropts := []replica.Option{
		replica.WithCache(cache),
		replica.WithConfig(cfg.ReplicaConfig()),
		replica.WithClock(now),
		replica.WithLogger(logger),
		replica.OnState(func(s replica.ConnState) {
			logger.Debug("sync state", "state", s)
		}),
	}
	if topts.onPush != nil {
		ropts = append(ropts, replica.OnPush(topts.onPush))
	}
	t.Replica = replica.New(remote, ropts...)

	t.Loaded = t.Replica.Load(ctx)
	logger.Info("terminal loaded",
		"terminal", cfg.Terminal,
		"source", t.Loaded.Source,
		"bowls", t.Loaded.Snapshot.Len(),
	)

	st := bowl.NewStore()
	st.Replace(t.Loaded.Snapshot)
	t.Engine = engine.New(st,
		engine.WithScheduler(t.Replica),
		engine.WithClock(now),
		engine.WithLogger(logger),
		engine.WithValidator(cfg.Validator()),
		engine.WithImportPrefixes(cfg.Import.AcceptedPrefixes),
		engine.WithSession(topts.session),
	)
	return t, nil
}

// connect builds the remote selected by the config. A standalone terminal
// keeps its document in an in-process remote seeded from the cache, so the
// cache stays the durable copy.
func (t *Terminal) connect(ctx context.Context, now func() time.Time) (replica.Remote, error) {
	switch t.Config.Remote.Driver {
	case config.DriverPostgres:
		pool, err := pgremote.NewPool(ctx, t.Config.Remote.DSN)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to configure postgres remote", err)
		}
		t.pool = pool
		r := pgremote.New(pool, t.Config.Remote.Document)
		if err := r.EnsureSchema(ctx); err != nil {
			t.logger.Warn("remote schema check failed", "error", err)
		}
		return r, nil

	case config.DriverMemory:
		return replica.NewMemoryRemote(now), nil

	default:
		mem := replica.NewMemoryRemote(now)
		cached, err := t.cache.Load(ctx)
		if err != nil {
			t.logger.Warn("local cache load failed", "error", err)
			return mem, nil
		}
		if cached != nil {
			if _, err := mem.Write(ctx, *cached); err != nil {
				return nil, fmt.Errorf("seed standalone remote: %w", err)
			}
		}
		return mem, nil
	}
}

// withTerminal opens a terminal for one command, runs fn against the running
// engine and closes it again. A failed final push is printed as a warning.
func withTerminal(cmd *cobra.Command, opts *RootOptions, cfg config.Config, session scan.Session, fn func(ctx context.Context, t *Terminal) error) error {
	ctx := commandContext(cmd)
	logger := opts.newLogger(cmd)

	topts := opts.hooks
	topts.session = session
	t, err := openTerminal(ctx, cfg, logger, topts)
	if err != nil {
		return err
	}
	t.Start()

	runErr := fn(ctx, t)
	if closeErr := t.Close(ctx); closeErr != nil {
		if opts.Format != "json" {
			opts.formatter(cmd).Severity(bowl.SeverityWarning, "sync: %v", closeErr)
		}
		logger.Warn("terminal close", "error", closeErr)
	}
	return runErr
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Start runs the engine in the background until Close.
func (t *Terminal) Start() {
	t.started = true
	go func() {
		if err := t.Engine.Run(context.Background()); err != nil {
			t.logger.Error("engine stopped", "error", err)
		}
	}()
}

// Reporter returns a report.Reporter using the configured rule and zone.
func (t *Terminal) Reporter() (*report.Reporter, error) {
	return newReporter(t.Config, t.now)
}

func newReporter(cfg config.Config, now func() time.Time) (*report.Reporter, error) {
	opts := []report.Option{report.WithLocation(cfg.Location()), report.WithClock(now)}
	if cfg.Report.OverdueRule != "" {
		rule, err := report.CompileRule(cfg.Report.OverdueRule)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid overdue rule", err)
		}
		opts = append(opts, report.WithRule(rule))
	}
	return report.New(opts...), nil
}

// Close stops a started engine, pushes anything still scheduled and releases
// the cache and pool. A failed final push is reported but local state is
// already in the cache.
func (t *Terminal) Close(ctx context.Context) error {
	var errs []error
	if t.started {
		t.Engine.Stop()
		<-t.Engine.Done()
		t.started = false
	}
	if t.Replica != nil {
		if err := t.Replica.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if t.cache != nil {
		if err := t.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close local cache: %w", err))
		}
		t.cache = nil
	}
	if t.pool != nil {
		t.pool.Close()
		t.pool = nil
	}
	return errors.Join(errs...)
}
