package handlers

import (
	"context"
)

// Plan resolves the run without side effects and prints the per-stage
// plan. Dependencies without persisted state resolve to their declared
// mocks; applied dependencies show their real outputs.
func Plan(ctx context.Context, opts Options) error {
	exec, _, err := newExecutor(ctx, opts, false)
	if err != nil {
		return err
	}

	rep, err := exec.Plan(ctx)
	if err != nil {
		return err
	}

	rep.Render(stdout)
	if rep.Failed() {
		return runFailed(rep)
	}
	return nil
}
