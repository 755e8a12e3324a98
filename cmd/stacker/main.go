// Package main is the entry point for the stacker CLI.
//
// stacker orchestrates staged infrastructure deployments for many
// tenants from a single declarative stage catalog: it resolves the
// dependency order, previews runs against mock outputs, applies stages
// concurrently with per-tenant state isolation, and tears them down in
// reverse order.
//
// Commands: plan, apply, destroy, validate, version.
//
// For detailed usage information, run:
//
//	stacker --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyvedata/stacker/cmd/stacker/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// First signal cancels the run; in-flight stages finish their current
	// attempt before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
