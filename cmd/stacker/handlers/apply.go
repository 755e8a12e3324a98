package handlers

import (
	"context"
)

// Apply executes the resolved stage order for one tenant and persists
// stage outputs through the state store. Stages run concurrently up to
// the configured bound; a failure fells its transitive dependents while
// independent branches finish.
func Apply(ctx context.Context, opts Options) error {
	exec, rt, err := newExecutor(ctx, opts, true)
	if err != nil {
		return err
	}

	rt.log.Info("applying stages", "tenant", rt.cfg.TenantID(), "stages", len(rt.cat.Stages))

	rep, err := exec.Apply(ctx)
	if err != nil {
		return err
	}

	rep.Render(stdout)
	if rep.Failed() {
		return runFailed(rep)
	}
	if rep.Cancelled {
		return context.Canceled
	}
	return nil
}
