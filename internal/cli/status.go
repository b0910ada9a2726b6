package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/replica"
	"github.com/roach88/bowltrack/internal/report"
	"github.com/roach88/bowltrack/internal/scan"
	"github.com/roach88/bowltrack/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Operator string
}

// StatusResult is the JSON payload of the status command.
type StatusResult struct {
	Terminal  string           `json:"terminal"`
	Source    replica.Source   `json:"source"`
	RemoteErr string           `json:"remoteError,omitempty"`
	Counts    report.Counts    `json:"counts"`
	Overnight report.Overnight `json:"overnight"`
	Scans     []bowl.ScanEntry `json:"recentScans"`

	Cache  *store.Info        `json:"cache,omitempty"`
	Pushes []store.PushRecord `json:"recentPushes"`
}

// How many scans and pushes status lists.
const (
	recentScans  = 10
	recentPushes = 5
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dashboard counters and the overnight prep report",
		Long: `Show the terminal dashboard: active bowls, bowls prepared and returned
today, the operator's scans today, the kitchen prep report for the
current 22:00 cycle, the most recent scans, and the local cache with its
latest pushes to the remote.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Operator, "operator", "o", "", "count scans today for this operator")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	var res StatusResult
	err = withTerminal(cmd, opts.RootOptions, cfg, scan.Session{}, func(ctx context.Context, t *Terminal) error {
		snap, err := t.Engine.Snapshot(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "snapshot not available", err)
		}
		rep, err := t.Reporter()
		if err != nil {
			return err
		}
		res = StatusResult{
			Terminal:  cfg.Terminal,
			Source:    t.Loaded.Source,
			Counts:    rep.Counts(snap, opts.Operator),
			Overnight: rep.Overnight(snap),
			Scans:     recent(snap.History, recentScans),
		}
		if t.Loaded.RemoteErr != nil {
			res.RemoteErr = t.Loaded.RemoteErr.Error()
		}
		if res.Cache, err = t.cache.Info(ctx); err != nil {
			return WrapExitError(ExitCommandError, "local cache not readable", err)
		}
		if res.Pushes, err = t.cache.Pushes(ctx, recentPushes); err != nil {
			return WrapExitError(ExitCommandError, "local cache not readable", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.JSON(res, nil)
	}
	printStatus(out, res, opts.Operator)
	return nil
}

// recent returns the first n entries of the newest-first history.
func recent(history []bowl.ScanEntry, n int) []bowl.ScanEntry {
	if len(history) > n {
		history = history[:n]
	}
	return append([]bowl.ScanEntry{}, history...)
}

func printStatus(out *OutputFormatter, res StatusResult, operator string) {
	w := out.Writer
	fmt.Fprintf(w, "Terminal %s (loaded from %s)\n", res.Terminal, res.Source)
	if res.RemoteErr != "" {
		out.Severity(bowl.SeverityWarning, "remote unavailable: %s", res.RemoteErr)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Active:          %d\n", res.Counts.Active)
	fmt.Fprintf(w, "Prepared today:  %d\n", res.Counts.PreparedToday)
	fmt.Fprintf(w, "Returned today:  %d\n", res.Counts.ReturnedToday)
	if operator != "" {
		fmt.Fprintf(w, "Scans by %s today: %d\n", operator, res.Counts.MyScansToday)
	}
	fmt.Fprintln(w)

	o := res.Overnight
	fmt.Fprintf(w, "Overnight prep %s to %s: %d bowl(s)\n",
		o.Start.Format("Jan 2 15:04"), o.End.Format("Jan 2 15:04"), o.Total)
	if len(o.Lines) > 0 {
		writePrepLines(w, o.Lines)
	}

	if len(res.Scans) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Recent scans:")
		for _, s := range res.Scans {
			fmt.Fprintf(w, "  %s  %-8s %-10s %s\n", s.Timestamp.Format("15:04:05"), s.Kind, s.Operator, s.Note)
		}
	}

	fmt.Fprintln(w)
	if res.Cache != nil {
		fmt.Fprintf(w, "Local cache: %d bowl(s), saved %s, digest %s\n",
			res.Cache.Bowls, res.Cache.SavedAt.Format("Jan 2 15:04:05"), shortDigest(res.Cache.Digest))
	} else {
		fmt.Fprintln(w, "Local cache: empty")
	}
	if len(res.Pushes) > 0 {
		fmt.Fprintln(w, "Recent pushes:")
		for _, p := range res.Pushes {
			if p.OK {
				fmt.Fprintf(w, "  %s  ok      %s\n", p.At.Format("Jan 2 15:04:05"), shortDigest(p.Digest))
				continue
			}
			fmt.Fprintf(w, "  %s  %s  %s  %s\n", p.At.Format("Jan 2 15:04:05"),
				Colorize(bowl.SeverityError, "failed"), shortDigest(p.Digest), p.Error)
		}
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func writePrepLines(w io.Writer, lines []report.PrepLine) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  Dish\tOperator\tCount")
	for _, l := range lines {
		fmt.Fprintf(tw, "  %s\t%s\t%d\n", l.Dish, l.Operator, l.Count)
	}
	_ = tw.Flush()
}
