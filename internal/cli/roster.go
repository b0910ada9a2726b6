package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bowltrack/internal/config"
)

// RosterResult is the JSON payload of the roster command.
type RosterResult struct {
	Kitchen []string `json:"kitchen"`
	Return  []string `json:"return"`
	Dishes  []string `json:"dishes"`
}

// NewRosterCommand creates the roster command.
func NewRosterCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "List operators per role and the dish labels",
		Long: `List the operators allowed in each session mode and the dish labels
accepted for kitchen scans. Admins appear under both modes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			res := RosterResult{
				Kitchen: nonNil(cfg.Operators(config.RoleKitchen)),
				Return:  nonNil(cfg.Operators(config.RoleReturn)),
				Dishes:  nonNil(cfg.Dishes),
			}

			out := rootOpts.formatter(cmd)
			if rootOpts.Format == "json" {
				return out.JSON(res, nil)
			}
			w := out.Writer
			fmt.Fprintf(w, "Kitchen: %s\n", strings.Join(res.Kitchen, ", "))
			fmt.Fprintf(w, "Return:  %s\n", strings.Join(res.Return, ", "))
			fmt.Fprintf(w, "Dishes:  %s\n", strings.Join(res.Dishes, " "))
			return nil
		},
	}
	return cmd
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
