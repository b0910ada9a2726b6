package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/config"
	"github.com/roach88/bowltrack/internal/replica"
	"github.com/roach88/bowltrack/internal/scan"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	ScanOptions
}

// closeTimeout bounds the final push when the terminal shuts down.
const closeTimeout = 15 * time.Second

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{ScanOptions: ScanOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive scanning terminal",
		Long: `Start a terminal that reads scans from stdin, one per line, while
listening for changes from other terminals.

Lines starting with ":" are terminal commands:
  :kitchen <operator> [dish]   switch to kitchen mode
  :return <operator>           switch to return mode
  :dish <dish>                 change the dish label
  :import <file>               reconcile a manifest
  :reset                       remove bowls prepared today
  :status                      show dashboard counters
  :quit                        stop the terminal

Any other line is scanned in the current session.

Example:
  bowltrack run --config terminal.yaml --mode kitchen --operator Hamid --dish A`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerminal(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "initial session mode (kitchen|return)")
	cmd.Flags().StringVarP(&opts.Operator, "operator", "o", "", "initial operator")
	cmd.Flags().StringVarP(&opts.Dish, "dish", "d", "", "initial dish label")

	return cmd
}

// lockedWriter serializes writes from the input loop and sync callbacks.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func runTerminal(opts *RunOptions, cmd *cobra.Command) error {
	sess, err := opts.session()
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := checkSession(cfg.Operators(string(sess.Mode)), cfg.HasDish, sess); err != nil {
		return err
	}
	logger := opts.newLogger(cmd)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	out := opts.formatter(cmd)
	out.Format = "text"
	out.Writer = &lockedWriter{w: cmd.OutOrStdout()}

	topts := opts.hooks
	topts.session = sess
	userPush := topts.onPush
	topts.onPush = func(res replica.PushResult) {
		if res.Err != nil {
			out.Severity(bowl.SeverityWarning, "sync: %v", res.Err)
		}
		if userPush != nil {
			userPush(res)
		}
	}

	t, err := openTerminal(ctx, cfg, logger, topts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
		defer closeCancel()
		if err := t.Close(closeCtx); err != nil {
			logger.Warn("terminal close", "error", err)
		}
	}()

	if t.Loaded.RemoteErr != nil {
		out.Severity(bowl.SeverityWarning, "remote unavailable, working from %s", t.Loaded.Source)
	}
	fmt.Fprintf(out.Writer, "Terminal %s ready with %d bowl(s). Type :quit to stop.\n", cfg.Terminal, t.Loaded.Snapshot.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.Engine.Run(gctx)
	})
	g.Go(func() error {
		return t.Replica.Subscribe(gctx, t.Engine.ApplyRemote)
	})
	g.Go(func() error {
		defer cancel()
		return (&console{t: t, cfg: cfg, out: out}).serve(gctx, cmd.InOrStdin())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "terminal error", err)
	}
	logger.Info("terminal stopped")
	return nil
}

// console reads terminal input lines and drives the engine.
type console struct {
	t   *Terminal
	cfg config.Config
	out *OutputFormatter
}

// serve handles lines from in until EOF, :quit or ctx is done.
func (c *console) serve(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return ctx.Err()
				}
			}
			quit, err := c.handle(ctx, strings.TrimSpace(line))
			if err != nil || quit {
				return err
			}
		}
	}
}

// handle processes one line. Only engine failures are returned as errors;
// rejected input is printed and the console keeps going.
func (c *console) handle(ctx context.Context, line string) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ":") {
		outcome, err := c.t.Engine.Scan(ctx, line)
		if err != nil {
			return false, err
		}
		printOutcome(c.out, outcome)
		return false, nil
	}

	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		return false, nil
	}
	args := fields[1:]
	switch fields[0] {
	case "quit", "q", "exit":
		return true, nil
	case "kitchen", "return":
		return false, c.switchMode(ctx, fields[0], args)
	case "dish":
		return false, c.switchDish(ctx, args)
	case "import":
		return false, c.importFile(ctx, args)
	case "reset":
		n, err := c.t.Engine.ResetToday(ctx)
		if err != nil {
			return false, err
		}
		c.out.Severity(bowl.SeveritySuccess, "Removed %d bowl(s) prepared today", n)
		return false, nil
	case "status":
		return false, c.status(ctx)
	default:
		c.out.Severity(bowl.SeverityError, "unknown command :%s", fields[0])
		return false, nil
	}
}

func (c *console) switchMode(ctx context.Context, mode string, args []string) error {
	if len(args) == 0 {
		c.out.Severity(bowl.SeverityError, "usage: :%s <operator>", mode)
		return nil
	}
	m, _ := scan.ParseMode(mode)
	sess := scan.Session{Mode: m, Operator: args[0]}
	if m == scan.ModeKitchen && len(args) > 1 {
		sess.Dish = args[1]
	}
	if err := checkSession(c.cfg.Operators(mode), c.cfg.HasDish, sess); err != nil {
		c.out.Severity(bowl.SeverityError, "%s", err)
		return nil
	}
	if err := c.t.Engine.SetSession(ctx, sess); err != nil {
		return err
	}
	c.out.Severity(bowl.SeverityInfo, "%s", describeSession(sess))
	return nil
}

func (c *console) switchDish(ctx context.Context, args []string) error {
	if len(args) != 1 {
		c.out.Severity(bowl.SeverityError, "usage: :dish <dish>")
		return nil
	}
	sess, err := c.t.Engine.Session(ctx)
	if err != nil {
		return err
	}
	if sess.Mode != scan.ModeKitchen {
		c.out.Severity(bowl.SeverityError, "dish applies to kitchen mode only")
		return nil
	}
	if !c.cfg.HasDish(args[0]) {
		c.out.Severity(bowl.SeverityError, "unknown dish %q", args[0])
		return nil
	}
	sess.Dish = args[0]
	if err := c.t.Engine.SetSession(ctx, sess); err != nil {
		return err
	}
	c.out.Severity(bowl.SeverityInfo, "%s", describeSession(sess))
	return nil
}

func (c *console) importFile(ctx context.Context, args []string) error {
	if len(args) != 1 {
		c.out.Severity(bowl.SeverityError, "usage: :import <file>")
		return nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		c.out.Severity(bowl.SeverityError, "read manifest: %v", err)
		return nil
	}
	res, err := c.t.Engine.Import(ctx, data)
	if err != nil {
		if bowl.CodeOf(err) == "" {
			return err
		}
		c.out.Severity(bowl.SeverityError, "%s", err)
		return nil
	}
	printImport(c.out, res)
	return nil
}

func (c *console) status(ctx context.Context) error {
	snap, err := c.t.Engine.Snapshot(ctx)
	if err != nil {
		return err
	}
	sess, err := c.t.Engine.Session(ctx)
	if err != nil {
		return err
	}
	rep, err := c.t.Reporter()
	if err != nil {
		c.out.Severity(bowl.SeverityError, "%s", err)
		return nil
	}
	counts := rep.Counts(snap, sess.Operator)
	c.out.Severity(bowl.SeverityInfo, "active %d, prepared today %d, returned today %d, my scans today %d, sync %s",
		counts.Active, counts.PreparedToday, counts.ReturnedToday, counts.MyScansToday, c.t.Replica.State())
	return nil
}

func describeSession(s scan.Session) string {
	if s.Mode == scan.ModeKitchen && s.Dish != "" {
		return fmt.Sprintf("%s mode: %s, dish %s", s.Mode, s.Operator, s.Dish)
	}
	return fmt.Sprintf("%s mode: %s", s.Mode, s.Operator)
}
