package commands

import (
	"github.com/spf13/cobra"

	"github.com/hyvedata/stacker/cmd/stacker/handlers"
)

// Plan returns the command that previews a run without side effects.
func Plan() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview the resolved stage order and inputs",
		Long: `Preview what apply would do for a tenant.

Every stage is resolved in dependency order. Inputs referencing stages
that already have applied state show the real outputs; everything else
shows the catalog's declared mock outputs. Nothing is provisioned and
no state is written.

Examples:
  # Plan all stages for tenant acme
  stacker plan -t acme

  # Plan only the dns stage and its prerequisites
  stacker plan -t acme --stage dns`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Plan(cmd.Context(), opts)
		},
	}

	bindRunFlags(cmd, &opts)
	bindStateFlags(cmd, &opts)

	return cmd
}
