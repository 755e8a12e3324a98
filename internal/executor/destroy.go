package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/hyvedata/stacker/internal/state"
	"github.com/hyvedata/stacker/internal/util/retry"
)

// Destroy tears stages down in the exact reverse of the apply order.
// Stages that never applied, or were already destroyed, are skipped. A
// destroy failure blocks the stage's own prerequisites (they would be
// destroyed afterwards and are still depended upon) but leaves
// independent branches to finish.
//
// Destroy is deliberately sequential: teardown ordering mistakes are
// expensive and the deterministic reverse order is the safety rail.
func (e *Executor) Destroy(ctx context.Context) (*Report, error) {
	scope, err := e.scope(true)
	if err != nil {
		return nil, err
	}

	rep := newReport(e.tenant(), "destroy")
	blocked := make(map[string]string) // stage -> failed dependent that blocks it

	for _, id := range e.g.ReverseOrder() {
		if !scope[id] {
			continue
		}

		if err := ctx.Err(); err != nil {
			rep.Cancelled = true
			break
		}

		if origin, ok := blocked[id]; ok {
			rep.add(&StageResult{Stage: id, Status: StatusFailed, PropagatedFrom: origin})
			e.obs.StageFinished(id, StatusFailed, 0, nil)
			continue
		}

		if !e.active[id] {
			rep.add(&StageResult{Stage: id, Status: StatusSkippedByCondition})
			continue
		}

		res := e.destroyStage(ctx, id)
		rep.add(res)
		e.obs.StageFinished(id, res.Status, res.Duration, res.Err)
		e.metrics.observeStage(e.tenant(), res.Status, res.Duration)

		if res.Status == StatusFailed {
			e.blockPrerequisites(id, scope, blocked)
		}
	}

	e.obs.RunFinished(rep)
	return rep, nil
}

func (e *Executor) destroyStage(ctx context.Context, id string) *StageResult {
	res := &StageResult{Stage: id, Status: StatusFailed}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	def := e.definition(id)

	rec, err := e.loadRecord(ctx, id)
	if err != nil {
		res.Err = err
		return res
	}
	if rec == nil || rec.Status == state.StatusDestroyed {
		// Never applied, nothing to tear down.
		res.Status = StatusNotApplied
		return res
	}

	mod, err := e.resolveModule(def)
	if err != nil {
		res.Err = err
		return res
	}

	loc, err := state.Partition(e.tenant(), id)
	if err != nil {
		res.Err = err
		return res
	}

	var token state.Token
	err = retry.WithExponentialBackoff(ctx, func() error {
		t, err := e.store.Lock(ctx, loc)
		if err != nil {
			return err
		}
		token = t
		return nil
	}, e.retryOpts...)
	if err != nil {
		res.Err = fmt.Errorf("failed to lock %s: %w", loc, err)
		return res
	}
	defer func() {
		if err := e.store.Unlock(context.WithoutCancel(ctx), token); err != nil {
			e.log.Error(err, "failed to unlock state location", "location", string(loc))
		}
	}()

	outputs := rec.Outputs
	err = retry.WithExponentialBackoff(ctx, func() error {
		res.Attempts++
		return mod.Destroy(ctx, outputs)
	}, e.retryOpts...)
	if err != nil {
		res.Err = fmt.Errorf("provider destroy failed: %w", err)
		return res
	}

	// Record the teardown even when the run was cancelled mid-destroy.
	if err := e.store.Put(context.WithoutCancel(ctx), loc, &state.Record{
		Status:        state.StatusDestroyed,
		ModuleVersion: def.Module.Version,
	}, rec.Version); err != nil {
		res.Err = fmt.Errorf("failed to persist state: %w", err)
		return res
	}

	res.Status = StatusSucceeded
	return res
}

// blockPrerequisites marks every transitive prerequisite of a failed
// destroy as blocked: they cannot be torn down while something that
// depends on them is still standing.
func (e *Executor) blockPrerequisites(failed string, scope map[string]bool, blocked map[string]string) {
	for _, pred := range e.g.Predecessors(failed) {
		if !scope[pred] {
			continue
		}
		if _, done := blocked[pred]; done {
			continue
		}
		blocked[pred] = failed
		e.blockPrerequisites(pred, scope, blocked)
	}
}
