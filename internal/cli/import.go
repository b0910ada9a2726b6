package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/manifest"
	"github.com/roach88/bowltrack/internal/scan"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <manifest.json|->",
		Short: "Reconcile a customer manifest into active bowls",
		Long: `Import a delivery manifest and mark every bowl code it lists as active.

The manifest may be a flat list of codes or a nested company/customer
tree. Codes already prepared move to active; codes already active get
their customer metadata refreshed. Use "-" to read from stdin.

A manifest that is not valid JSON, or that contains no acceptable code,
leaves every bowl untouched.

Exit codes:
  0 - Manifest applied
  1 - Manifest rejected
  2 - Command error (unreadable file, bad config)

Examples:
  bowltrack import deliveries.json
  curl -s https://example.invalid/export | bowltrack import -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func readManifest(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read manifest from stdin", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to read manifest %s", path), err)
	}
	return data, nil
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	data, err := readManifest(cmd, path)
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	out := opts.formatter(cmd)
	var (
		res       manifest.Result
		importErr error
	)
	err = withTerminal(cmd, opts, cfg, scan.Session{}, func(ctx context.Context, t *Terminal) error {
		res, importErr = t.Engine.Import(ctx, data)
		if importErr != nil && bowl.CodeOf(importErr) == "" {
			return WrapExitError(ExitCommandError, "import not processed", importErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if importErr != nil {
		code := string(bowl.CodeOf(importErr))
		if opts.Format == "json" {
			if err := out.JSON(res, &CLIError{Code: code, Message: importErr.Error()}); err != nil {
				return err
			}
		} else {
			out.Severity(bowl.SeverityError, "%s", importErr.Error())
		}
		return WrapExitError(ExitFailure, "import rejected", importErr)
	}

	if opts.Format == "json" {
		return out.JSON(res, nil)
	}
	printImport(out, res)
	return nil
}

func printImport(out *OutputFormatter, res manifest.Result) {
	sev := bowl.SeveritySuccess
	if res.Applied() == 0 {
		sev = bowl.SeverityInfo
	}
	out.Severity(sev, "Imported %d bowl(s): %d created, %d updated, %d moved from prepared",
		res.Applied(), res.Created, res.Updated, res.MovedFromPrepared)
	if res.Rejected > 0 || res.Duplicates > 0 {
		out.Severity(bowl.SeverityWarning, "Skipped %d rejected and %d duplicate code(s)", res.Rejected, res.Duplicates)
	}
}
