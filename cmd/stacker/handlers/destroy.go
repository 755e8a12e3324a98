package handlers

import (
	"context"
)

// Destroy tears stages down in reverse dependency order. Stages that
// never applied are skipped; a destroy failure blocks the stage's own
// prerequisites from being torn down underneath it.
func Destroy(ctx context.Context, opts Options) error {
	exec, rt, err := newExecutor(ctx, opts, true)
	if err != nil {
		return err
	}

	rt.log.Info("destroying stages", "tenant", rt.cfg.TenantID())

	rep, err := exec.Destroy(ctx)
	if err != nil {
		return err
	}

	rep.Render(stdout)
	if rep.Failed() {
		return runFailed(rep)
	}
	return nil
}
