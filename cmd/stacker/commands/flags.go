package commands

import (
	"github.com/spf13/cobra"

	"github.com/hyvedata/stacker/cmd/stacker/handlers"
)

// bindRunFlags attaches the flags every run command shares.
func bindRunFlags(cmd *cobra.Command, opts *handlers.Options) {
	cmd.Flags().StringVarP(&opts.Tenant, "tenant", "t", "", "Tenant to run for (overlay defaults to tenants/<tenant>.yaml)")
	cmd.Flags().StringVar(&opts.CatalogPath, "catalog", "catalog.yaml", "Path to the stage catalog")
	cmd.Flags().StringVar(&opts.DefaultsPath, "defaults", "defaults.yaml", "Path to the shared configuration defaults")
	cmd.Flags().StringVar(&opts.OverlayPath, "overlay", "", "Path to the tenant overlay (overrides the tenant-derived path)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log per-stage progress")
}

// bindStateFlags attaches the flags for commands that touch the store.
func bindStateFlags(cmd *cobra.Command, opts *handlers.Options) {
	cmd.Flags().StringVar(&opts.StateDir, "state-dir", handlers.DefaultStateDir, "Directory for the local state store (ignored when STACKER_S3_BUCKET is set)")
	cmd.Flags().StringSliceVar(&opts.Stages, "stage", nil, "Restrict the run to these stages and their closure (repeatable)")
}
