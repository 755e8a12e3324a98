package commands

import (
	"github.com/spf13/cobra"

	"github.com/hyvedata/stacker/cmd/stacker/handlers"
)

// Apply returns the command that executes a run for one tenant.
func Apply() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the stage catalog for a tenant",
		Long: `Execute every active stage in dependency order.

Independent stages run concurrently up to the --concurrency bound. Stage
outputs are persisted to the state store under the tenant's partition;
a failed stage blocks its transitive dependents while unrelated branches
finish.

Examples:
  # Apply all stages for tenant acme
  stacker apply -t acme

  # Re-apply only the dns stage, reusing prerequisite state
  stacker apply -t acme --stage dns

  # Serial execution
  stacker apply -t acme --concurrency 1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), opts)
		},
	}

	bindRunFlags(cmd, &opts)
	bindStateFlags(cmd, &opts)
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "Maximum stages applied at once (0 for the default)")

	return cmd
}
