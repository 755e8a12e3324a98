package commands

import (
	"github.com/spf13/cobra"

	"github.com/hyvedata/stacker/cmd/stacker/handlers"
)

// Destroy returns the command that tears a tenant's stages down.
func Destroy() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy a tenant's stages in reverse order",
		Long: `Tear stages down in the exact reverse of the apply order.

Stages that never applied are skipped. When a destroy fails, the failed
stage's prerequisites are left standing: something that depends on them
still exists.

Examples:
  # Destroy everything for tenant acme
  stacker destroy -t acme

  # Destroy the dns stage and everything that depends on it
  stacker destroy -t acme --stage dns`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), opts)
		},
	}

	bindRunFlags(cmd, &opts)
	bindStateFlags(cmd, &opts)

	return cmd
}
