// Package module defines the SPI between the orchestrator and the
// provisioning modules that do the actual cloud work.
//
// The orchestrator never talks to a cloud provider itself: each stage
// names a module by source and version, and at apply time the resolved
// inputs are handed to whatever implementation the embedding program
// registered. Credentials are the module's concern; they never pass
// through stage definitions or the orchestrator.
package module

import "context"

// Module is one provisioning unit. Apply must be idempotent: the
// orchestrator may re-apply a stage on every run.
type Module interface {
	// Apply provisions the stage's resources from the resolved inputs
	// and returns the stage's named outputs.
	Apply(ctx context.Context, inputs map[string]any) (map[string]any, error)

	// Destroy tears the stage's resources down. It receives the outputs
	// the last successful Apply persisted.
	Destroy(ctx context.Context, outputs map[string]any) error
}

// Resolver maps a catalog module reference to an implementation.
type Resolver interface {
	Resolve(source, version string) (Module, error)
}
