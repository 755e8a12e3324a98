package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyvedata/stacker/internal/catalog"
	"github.com/hyvedata/stacker/internal/resolve"
	"github.com/hyvedata/stacker/internal/state"
	"github.com/hyvedata/stacker/internal/util/retry"
)

type workItem struct {
	def    *catalog.Definition
	inputs map[string]any
}

// Apply executes the run: every active in-scope stage is applied in
// dependency order, bounded by the concurrency limit, with results
// persisted through the state store. Non-target prerequisites that
// already have applied state are reused instead of re-applied.
//
// Cancelling ctx stops dispatching immediately; in-flight stages finish
// their current attempt and the report comes back Cancelled.
func (e *Executor) Apply(ctx context.Context) (*Report, error) {
	scope, err := e.scope(false)
	if err != nil {
		return nil, err
	}
	order := e.scopedOrder(scope)

	rep := newReport(e.tenant(), "apply")
	resolver := resolve.New(e.cfg, e.cat, resolve.ModeApply)
	statuses := make(map[string]Status, len(order))

	// Settle skips and state reuse before anything is scheduled.
	var runnable int
	for _, id := range order {
		def := e.definition(id)

		if !e.active[id] {
			statuses[id] = StatusSkippedByCondition
			resolver.MarkSkipped(def)
			res := &StageResult{Stage: id, Status: StatusSkippedByCondition}
			rep.add(res)
			e.obs.StageFinished(id, res.Status, 0, nil)
			e.metrics.observeStage(e.tenant(), res.Status, 0)
			continue
		}

		if !e.isTarget(id) {
			rec, err := e.loadRecord(ctx, id)
			if err != nil {
				return nil, err
			}
			if rec != nil && rec.Status == state.StatusApplied {
				statuses[id] = StatusSucceeded
				resolver.SetOutputs(id, rec.Outputs)
				rep.add(&StageResult{Stage: id, Status: StatusSucceeded, Reused: true, Outputs: rec.Outputs})
				continue
			}
		}

		statuses[id] = StatusPending
		runnable++
	}

	if runnable == 0 {
		e.obs.RunFinished(rep)
		return rep, nil
	}

	workers := e.concurrency
	if workers > runnable {
		workers = runnable
	}

	workCh := make(chan workItem, runnable)
	doneCh := make(chan *StageResult)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go e.worker(ctx, workCh, doneCh, &wg)
	}

	running := 0
	cancelled := false
	ctxDone := ctx.Done()

	promote := func() {
		for _, id := range order {
			if statuses[id] != StatusPending {
				continue
			}
			ready := true
			for _, pred := range e.g.Predecessors(id) {
				if !statuses[pred].Terminal() {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}

			def := e.definition(id)
			inputs, err := resolver.Inputs(def)
			if err != nil {
				statuses[id] = StatusFailed
				rep.add(&StageResult{Stage: id, Status: StatusFailed, Err: err})
				e.obs.StageFinished(id, StatusFailed, 0, err)
				e.metrics.observeStage(e.tenant(), StatusFailed, 0)
				e.propagateFailure(id, scope, statuses, rep)
				continue
			}

			statuses[id] = StatusRunning
			running++
			e.obs.StageStarted(id)
			workCh <- workItem{def: def, inputs: inputs}
		}
	}

	promote()

	for {
		if allTerminal(order, statuses) {
			break
		}
		if running == 0 {
			// Cancelled before the remaining stages could start, or a
			// scheduling dead end; either way nothing more can run.
			break
		}

		select {
		case res := <-doneCh:
			running--
			statuses[res.Stage] = res.Status
			rep.add(res)
			e.obs.StageFinished(res.Stage, res.Status, res.Duration, res.Err)
			e.metrics.observeStage(e.tenant(), res.Status, res.Duration)
			e.metrics.observeRetries(e.tenant(), res.Attempts)

			if res.Status == StatusSucceeded {
				resolver.SetOutputs(res.Stage, res.Outputs)
			} else if res.Status == StatusFailed {
				e.propagateFailure(res.Stage, scope, statuses, rep)
			}

			if !cancelled {
				promote()
			}

		case <-ctxDone:
			cancelled = true
			ctxDone = nil
			e.log.Info("cancellation requested, waiting for in-flight stages", "running", running)
		}
	}

	close(workCh)
	wg.Wait()

	// Stages the cancel kept from starting stay Pending in the report.
	for _, id := range order {
		if !statuses[id].Terminal() && statuses[id] != StatusRunning {
			if rep.Result(id) == nil {
				rep.add(&StageResult{Stage: id, Status: StatusPending})
			}
		}
	}

	rep.Cancelled = cancelled
	e.obs.RunFinished(rep)
	return rep, nil
}

func (e *Executor) worker(ctx context.Context, workCh <-chan workItem, doneCh chan<- *StageResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for item := range workCh {
		doneCh <- e.applyStage(ctx, item)
	}
}

// applyStage runs one stage end to end: lock the state location, apply
// the module with retry, persist outputs, unlock. It touches no scheduler
// state; the result is handed back over the completion channel.
func (e *Executor) applyStage(ctx context.Context, item workItem) *StageResult {
	def := item.def
	res := &StageResult{Stage: def.ID, Status: StatusFailed}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	loc, err := state.Partition(e.tenant(), def.ID)
	if err != nil {
		res.Err = err
		return res
	}

	mod, err := e.resolveModule(def)
	if err != nil {
		res.Err = err
		return res
	}

	// Lock conflicts are transient: another run may be finishing with
	// this location. Retry with backoff, then fail the stage.
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
		// Release even when the run is being cancelled.
		if err := e.store.Unlock(context.WithoutCancel(ctx), token); err != nil {
			e.log.Error(err, "failed to unlock state location", "location", string(loc))
		}
	}()

	rec, err := e.store.Get(ctx, loc)
	if err != nil {
		res.Err = err
		return res
	}
	var version int64
	if rec != nil {
		version = rec.Version
	}

	var outputs map[string]any
	err = retry.WithExponentialBackoff(ctx, func() error {
		res.Attempts++
		out, err := mod.Apply(ctx, item.inputs)
		if err != nil {
			return err
		}
		outputs = out
		return nil
	}, e.retryOpts...)
	if err != nil {
		res.Err = fmt.Errorf("provider apply failed: %w", err)
		return res
	}

	// The apply reached its safe boundary; its outputs must land even when
	// the run was cancelled while the module was in flight.
	if err := e.store.Put(context.WithoutCancel(ctx), loc, &state.Record{
		Status:        state.StatusApplied,
		ModuleVersion: def.Module.Version,
		Outputs:       outputs,
	}, version); err != nil {
		res.Err = fmt.Errorf("failed to persist state: %w", err)
		return res
	}

	res.Status = StatusSucceeded
	res.Outputs = outputs
	return res
}

// propagateFailure marks the failed stage's transitive dependents Failed
// without running them, each carrying its immediate upstream origin so
// the report can render the causal chain. Independent branches are
// untouched.
func (e *Executor) propagateFailure(failed string, scope map[string]bool, statuses map[string]Status, rep *Report) {
	for _, dep := range e.g.Dependents(failed) {
		if !scope[dep] || statuses[dep] != StatusPending {
			continue
		}
		statuses[dep] = StatusFailed
		rep.add(&StageResult{Stage: dep, Status: StatusFailed, PropagatedFrom: failed})
		e.obs.StageFinished(dep, StatusFailed, 0, nil)
		e.metrics.observeStage(e.tenant(), StatusFailed, 0)
		e.propagateFailure(dep, scope, statuses, rep)
	}
}

func (e *Executor) loadRecord(ctx context.Context, id string) (*state.Record, error) {
	loc, err := state.Partition(e.tenant(), id)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.Get(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to read state for stage %q: %w", id, err)
	}
	return rec, nil
}

func allTerminal(order []string, statuses map[string]Status) bool {
	for _, id := range order {
		if !statuses[id].Terminal() {
			return false
		}
	}
	return true
}
