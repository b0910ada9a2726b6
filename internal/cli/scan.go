package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/scan"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Mode     string
	Operator string
	Dish     string
}

// ScanReport is one scan in JSON output.
type ScanReport struct {
	scan.Outcome
	Error bowl.ErrorCode `json:"error,omitempty"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <code>...",
		Short: "Scan bowl codes in kitchen or return mode",
		Long: `Apply one or more scans in the given session.

Kitchen scans mark a bowl as prepared, evicting any customer assignment.
Return scans move a prepared or active bowl to returned.

Scanner input may be a bare code or a vendor URL ending in the code.

Exit codes:
  0 - Every scan was applied
  1 - One or more scans were rejected
  2 - Command error (bad config, unknown operator, etc.)

Examples:
  bowltrack scan --mode kitchen --operator Hamid --dish A 1234567
  bowltrack scan --mode return --operator Sultan https://vyt.to/ABC123`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "session mode (kitchen|return)")
	cmd.Flags().StringVarP(&opts.Operator, "operator", "o", "", "operator name from the roster")
	cmd.Flags().StringVarP(&opts.Dish, "dish", "d", "", "dish label for kitchen scans")

	return cmd
}

// session builds the scan session from flags. An empty mode is passed through
// so every scan reports UNKNOWN_MODE.
func (o *ScanOptions) session() (scan.Session, error) {
	sess := scan.Session{Operator: o.Operator, Dish: o.Dish}
	if o.Mode == "" {
		return sess, nil
	}
	mode, err := scan.ParseMode(o.Mode)
	if err != nil {
		return sess, WrapExitError(ExitCommandError, "invalid --mode", err)
	}
	sess.Mode = mode
	return sess, nil
}

func runScan(opts *ScanOptions, codes []string, cmd *cobra.Command) error {
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

	out := opts.formatter(cmd)
	var reports []ScanReport
	rejected := 0

	err = withTerminal(cmd, opts.RootOptions, cfg, sess, func(ctx context.Context, t *Terminal) error {
		for _, raw := range codes {
			outcome, err := t.Engine.Scan(ctx, raw)
			if err != nil {
				return WrapExitError(ExitCommandError, "scan not processed", err)
			}
			if !outcome.OK() {
				rejected++
			}
			reports = append(reports, ScanReport{Outcome: outcome, Error: outcome.ErrorCode()})
			if opts.Format != "json" {
				printOutcome(out, outcome)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var failed *CLIError
	if rejected > 0 {
		failed = &CLIError{
			Code:    "E_SCAN_REJECTED",
			Message: fmt.Sprintf("%d of %d scan(s) rejected", rejected, len(codes)),
		}
	}
	if opts.Format == "json" {
		if err := out.JSON(reports, failed); err != nil {
			return err
		}
	}
	if failed != nil {
		return NewExitError(ExitFailure, failed.Message)
	}
	return nil
}

// checkSession rejects operators and dishes that are not configured. Blank
// values are allowed and recorded as Unknown.
func checkSession(operators []string, hasDish func(string) bool, sess scan.Session) error {
	if sess.Mode == scan.ModeNone {
		return nil
	}
	if sess.Operator != "" && !slices.Contains(operators, sess.Operator) {
		return NewExitError(ExitCommandError, fmt.Sprintf("operator %q is not on the %s roster", sess.Operator, sess.Mode))
	}
	if sess.Mode == scan.ModeKitchen && sess.Dish != "" && !hasDish(sess.Dish) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown dish %q", sess.Dish))
	}
	return nil
}

func printOutcome(out *OutputFormatter, o scan.Outcome) {
	sev := o.Severity
	if o.CustomerReset {
		sev = bowl.SeverityInfo
	}
	out.Severity(sev, "%s", o.Message)
	out.VerboseLog("  %s in %s", o.Code, o.Elapsed)
}
