// Package executor walks the resolved stage order for one tenant run.
//
// A single scheduler goroutine owns every status transition; a pool of
// workers applies Ready stages concurrently. Validation-class problems
// (dangling config refs, unevaluable predicates, mandatory inputs bound to
// inactive producers) surface from New, before anything runs, so a run
// that starts can only fail stage by stage.
package executor

import (
	"fmt"
	"sort"

	"github.com/go-logr/logr"

	"github.com/hyvedata/stacker/internal/catalog"
	"github.com/hyvedata/stacker/internal/config"
	"github.com/hyvedata/stacker/internal/graph"
	"github.com/hyvedata/stacker/internal/state"
	"github.com/hyvedata/stacker/internal/util/retry"
	"github.com/hyvedata/stacker/pkg/module"
)

// DefaultConcurrency bounds the worker pool when the caller does not.
const DefaultConcurrency = 4

// Params wires an Executor. Config, Catalog, Graph and Store are
// mandatory; Modules may be nil for plan-only use.
type Params struct {
	Config  *config.TenantConfig
	Catalog *catalog.Catalog
	Graph   *graph.Graph
	Store   state.Store
	Modules module.Resolver

	// Targets restricts the run to the listed stages plus their
	// transitive prerequisites (plan/apply) or dependents (destroy).
	// Empty means every stage.
	Targets []string

	Concurrency int
	Logger      logr.Logger
	Observer    Observer
	Metrics     *Metrics

	// RetryOptions tune the backoff applied to locks and transient
	// provider errors.
	RetryOptions []retry.Option
}

// Executor runs plan, apply and destroy passes for one tenant.
type Executor struct {
	cfg     *config.TenantConfig
	cat     *catalog.Catalog
	g       *graph.Graph
	store   state.Store
	modules module.Resolver

	targets     map[string]bool
	concurrency int
	log         logr.Logger
	obs         Observer
	metrics     *Metrics
	retryOpts   []retry.Option

	// active is the once-per-run activation verdict for every stage.
	active map[string]bool
}

// New validates the run and builds the executor. Every validation-class
// error in the taxonomy (activation, config refs, mandatory-vs-inactive)
// is raised here; cycle detection already happened in graph.Build.
func New(p Params) (*Executor, error) {
	if p.Config == nil || p.Catalog == nil || p.Graph == nil || p.Store == nil {
		return nil, fmt.Errorf("executor requires config, catalog, graph and store")
	}

	active, err := p.Catalog.EvalActivation(p.Config)
	if err != nil {
		return nil, err
	}
	if err := p.Catalog.ValidateConfigRefs(p.Config); err != nil {
		return nil, err
	}
	if err := p.Catalog.ValidateMandatoryInputs(active); err != nil {
		return nil, err
	}

	e := &Executor{
		cfg:         p.Config,
		cat:         p.Catalog,
		g:           p.Graph,
		store:       p.Store,
		modules:     p.Modules,
		concurrency: p.Concurrency,
		log:         p.Logger,
		obs:         p.Observer,
		metrics:     p.Metrics,
		retryOpts:   p.RetryOptions,
		active:      active,
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}
	if e.obs == nil {
		e.obs = NopObserver{}
	}
	if len(p.Targets) > 0 {
		e.targets = make(map[string]bool, len(p.Targets))
		for _, t := range p.Targets {
			e.targets[t] = true
		}
	}

	return e, nil
}

func (e *Executor) tenant() string {
	return e.cfg.TenantID()
}

// isTarget reports whether a stage was explicitly requested. With no
// target subset every stage is a target.
func (e *Executor) isTarget(id string) bool {
	if e.targets == nil {
		return true
	}
	return e.targets[id]
}

// scope returns the set of stages this run covers: targets plus their
// prerequisite closure, or their dependent closure for destroy.
func (e *Executor) scope(forDestroy bool) (map[string]bool, error) {
	if e.targets == nil {
		all := make(map[string]bool)
		for _, id := range e.g.Order() {
			all[id] = true
		}
		return all, nil
	}

	targets := make([]string, 0, len(e.targets))
	for t := range e.targets {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	if forDestroy {
		return e.g.DependentClosure(targets)
	}
	return e.g.PrerequisiteClosure(targets)
}

// scopedOrder filters the deterministic topological order down to scope.
func (e *Executor) scopedOrder(scope map[string]bool) []string {
	var out []string
	for _, id := range e.g.Order() {
		if scope[id] {
			out = append(out, id)
		}
	}
	return out
}

func (e *Executor) definition(id string) *catalog.Definition {
	d, ok := e.cat.Stage(id)
	if !ok {
		// The graph is built from the catalog, so this is unreachable
		// short of construction from mismatched inputs.
		panic(fmt.Sprintf("stage %q in graph but not in catalog", id))
	}
	return d
}

func (e *Executor) resolveModule(d *catalog.Definition) (module.Module, error) {
	if e.modules == nil {
		return nil, fmt.Errorf("no module resolver configured")
	}
	return e.modules.Resolve(d.Module.Source, d.Module.Version)
}
