package commands

import (
	"github.com/spf13/cobra"

	"github.com/hyvedata/stacker/cmd/stacker/handlers"
)

// Validate returns the command that checks catalog and config without
// touching state.
func Validate() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the catalog and tenant configuration",
		Long: `Run every load-time check and exit.

Checks the configuration merge, catalog references, mock output
coverage, dependency cycles and activation predicates for the given
tenant. A clean exit means plan and apply will get past validation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Validate(cmd.Context(), opts)
		},
	}

	bindRunFlags(cmd, &opts)

	return cmd
}
