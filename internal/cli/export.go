package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bowltrack/internal/report"
	"github.com/roach88/bowltrack/internal/scan"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	CSV    bool
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <active|returned>",
		Short: "Export active or returned bowls",
		Long: `Export one collection as rows.

Active rows show how many days each bowl has been with its customer;
returned rows show how long ago it came back. Rows matching the
configured overdue rule (default "days > 7") are flagged.

Examples:
  bowltrack export active
  bowltrack export returned --csv -o returned.csv
  bowltrack export active --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.CSV, "csv", false, "write CSV instead of a table")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func runExport(opts *ExportOptions, arg string, cmd *cobra.Command) error {
	kind, err := report.ParseKind(arg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid export", err)
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	var rows []report.Row
	err = withTerminal(cmd, opts.RootOptions, cfg, scan.Session{}, func(ctx context.Context, t *Terminal) error {
		snap, err := t.Engine.Snapshot(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "snapshot not available", err)
		}
		rep, err := t.Reporter()
		if err != nil {
			return err
		}
		if kind == report.KindReturned {
			rows, err = rep.ReturnedRows(snap)
		} else {
			rows, err = rep.ActiveRows(snap)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "overdue rule failed", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer f.Close()
		w = f
	}

	if err := writeRows(w, opts, kind, rows); err != nil {
		return WrapExitError(ExitCommandError, "failed to write export", err)
	}
	if opts.Output != "" && opts.Format != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d %s row(s) to %s\n", len(rows), kind, opts.Output)
	}
	return nil
}

func writeRows(w io.Writer, opts *ExportOptions, kind report.Kind, rows []report.Row) error {
	switch {
	case opts.Format == "json":
		if rows == nil {
			rows = []report.Row{}
		}
		f := &OutputFormatter{Format: "json", Writer: w}
		return f.JSON(rows, nil)
	case opts.CSV:
		return report.WriteCSV(w, kind, rows)
	default:
		return report.WriteTable(w, kind, rows)
	}
}
