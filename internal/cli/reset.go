package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/scan"
)

// ResetResult is the JSON payload of reset-prepared.
type ResetResult struct {
	Removed int `json:"removed"`
}

// NewResetPreparedCommand creates the reset-prepared command.
func NewResetPreparedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-prepared",
		Short: "Remove bowls prepared today",
		Long: `Remove every prepared bowl whose preparation date is today in the
terminal's time zone. Active and returned bowls are not touched.

Use this to undo a kitchen session scanned against the wrong day.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResetPrepared(rootOpts, cmd)
		},
	}
	return cmd
}

func runResetPrepared(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	var removed int
	err = withTerminal(cmd, opts, cfg, scan.Session{}, func(ctx context.Context, t *Terminal) error {
		n, err := t.Engine.ResetToday(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "reset not processed", err)
		}
		removed = n
		return nil
	})
	if err != nil {
		return err
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.JSON(ResetResult{Removed: removed}, nil)
	}
	if removed == 0 {
		out.Severity(bowl.SeverityInfo, "No bowls prepared today")
		return nil
	}
	out.Severity(bowl.SeveritySuccess, "Removed %d bowl(s) prepared today", removed)
	return nil
}
