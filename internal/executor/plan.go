package executor

import (
	"context"

	"github.com/hyvedata/stacker/internal/resolve"
	"github.com/hyvedata/stacker/internal/state"
)

// Plan walks the resolved order without side effects: no locks, no store
// writes, no module calls. Inputs referencing dependencies that already
// have persisted state resolve to the real outputs; everything else
// resolves to the declared mocks. Stages run sequentially in the
// deterministic order, so plan output is reproducible.
func (e *Executor) Plan(ctx context.Context) (*Report, error) {
	scope, err := e.scope(false)
	if err != nil {
		return nil, err
	}
	order := e.scopedOrder(scope)

	rep := newReport(e.tenant(), "plan")
	resolver := resolve.New(e.cfg, e.cat, resolve.ModePlan)

	// Real outputs from earlier applies take precedence over mocks.
	materialized := make(map[string]bool)
	for _, id := range order {
		rec, err := e.loadRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.Status == state.StatusApplied {
			resolver.SetOutputs(id, rec.Outputs)
			materialized[id] = true
		}
	}

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			rep.Cancelled = true
			break
		}

		if rep.Result(id) != nil {
			continue // felled by an upstream plan failure
		}

		def := e.definition(id)

		if !e.active[id] {
			resolver.MarkSkipped(def)
			rep.add(&StageResult{Stage: id, Status: StatusSkippedByCondition})
			continue
		}

		inputs, err := resolver.Inputs(def)
		if err != nil {
			rep.add(&StageResult{Stage: id, Status: StatusFailed, Err: err})
			e.propagatePlanFailure(id, scope, rep)
			continue
		}

		rep.add(&StageResult{
			Stage:  id,
			Status: StatusReady,
			Inputs: inputs,
			Reused: materialized[id],
		})
	}

	e.obs.RunFinished(rep)
	return rep, nil
}

func (e *Executor) propagatePlanFailure(failed string, scope map[string]bool, rep *Report) {
	for _, dep := range e.g.Dependents(failed) {
		if !scope[dep] || rep.Result(dep) != nil {
			continue
		}
		rep.add(&StageResult{Stage: dep, Status: StatusFailed, PropagatedFrom: failed})
		e.propagatePlanFailure(dep, scope, rep)
	}
}
