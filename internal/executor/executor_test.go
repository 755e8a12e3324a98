package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvedata/stacker/internal/catalog"
	"github.com/hyvedata/stacker/internal/config"
	"github.com/hyvedata/stacker/internal/graph"
	"github.com/hyvedata/stacker/internal/resolve"
	"github.com/hyvedata/stacker/internal/state"
	"github.com/hyvedata/stacker/internal/util/retry"
	"github.com/hyvedata/stacker/pkg/module"
)

// fakeModules resolves every source to a scripted module so tests can
// observe ordering, inputs and failures without any real provider.
type fakeModules struct {
	mu       sync.Mutex
	applied  []string
	destroyed []string
	inputs   map[string]map[string]any
	outputs  map[string]map[string]any
	failures map[string]func() error
	gates    map[string]chan struct{}
}

func newFakeModules() *fakeModules {
	return &fakeModules{
		inputs:   make(map[string]map[string]any),
		outputs:  make(map[string]map[string]any),
		failures: make(map[string]func() error),
		gates:    make(map[string]chan struct{}),
	}
}

func (f *fakeModules) Resolve(source, _ string) (module.Module, error) {
	return &fakeModule{parent: f, source: source}, nil
}

func (f *fakeModules) appliedStages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.applied...)
}

func (f *fakeModules) destroyedStages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.destroyed...)
}

func (f *fakeModules) inputsFor(source string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[source]
}

type fakeModule struct {
	parent *fakeModules
	source string
}

func (m *fakeModule) Apply(_ context.Context, inputs map[string]any) (map[string]any, error) {
	f := m.parent

	f.mu.Lock()
	gate := f.gates[m.source]
	fail := f.failures[m.source]
	f.mu.Unlock()

	if fail != nil {
		if err := fail(); err != nil {
			return nil, err
		}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, m.source)
	f.inputs[m.source] = inputs
	out := f.outputs[m.source]
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func (m *fakeModule) Destroy(context.Context, map[string]any) error {
	f := m.parent

	f.mu.Lock()
	fail := f.failures[m.source]
	f.mu.Unlock()

	if fail != nil {
		if err := fail(); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, m.source)
	return nil
}

// failN returns a failure func erroring the first n calls.
func failN(n int, err error) func() error {
	var mu sync.Mutex
	calls := 0
	return func() error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= n {
			return err
		}
		return nil
	}
}

func fastRetry() []retry.Option {
	return []retry.Option{
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(2 * time.Millisecond),
		retry.WithMaxRetries(2),
	}
}

type fixture struct {
	cfg     *config.TenantConfig
	cat     *catalog.Catalog
	g       *graph.Graph
	store   *state.MemoryStore
	modules *fakeModules
}

func newFixture(t *testing.T, catalogYAML string, values map[string]any) *fixture {
	t.Helper()

	if values == nil {
		values = map[string]any{}
	}
	if _, ok := values["tenant"]; !ok {
		values["tenant"] = map[string]any{"id": "alpha"}
	}
	cfg, err := config.NewTenantConfig(values)
	require.NoError(t, err)

	cat, err := catalog.Parse([]byte(catalogYAML))
	require.NoError(t, err)

	g, err := graph.Build(cat)
	require.NoError(t, err)

	return &fixture{cfg: cfg, cat: cat, g: g, store: state.NewMemoryStore(), modules: newFakeModules()}
}

func (f *fixture) executor(t *testing.T, opts ...func(*Params)) *Executor {
	t.Helper()
	p := Params{
		Config:       f.cfg,
		Catalog:      f.cat,
		Graph:        f.g,
		Store:        f.store,
		Modules:      f.modules,
		Concurrency:  2,
		RetryOptions: fastRetry(),
	}
	for _, o := range opts {
		o(&p)
	}
	e, err := New(p)
	require.NoError(t, err)
	return e
}

const chainCatalog = `
stages:
  - id: c
    module: {source: c, version: "1"}
    outputs: [v]
    mock_outputs: {v: mock-c}
  - id: d
    module: {source: d, version: "1"}
    depends_on: [c]
    inputs:
      from_c: {output: c.v}
    outputs: [v]
    mock_outputs: {v: mock-d}
  - id: e
    module: {source: e, version: "1"}
    depends_on: [d]
    inputs:
      from_d: {output: d.v}
`

func TestApply_LinearChainOutputsFlow(t *testing.T) {
	f := newFixture(t, chainCatalog, nil)
	f.modules.outputs["c"] = map[string]any{"v": "10.0.0.0/16"}
	f.modules.outputs["d"] = map[string]any{"v": "from-d"}

	rep, err := f.executor(t).Apply(context.Background())
	require.NoError(t, err)
	require.False(t, rep.Failed())

	assert.Equal(t, []string{"c", "d", "e"}, f.modules.appliedStages())
	assert.Equal(t, "10.0.0.0/16", f.modules.inputsFor("d")["from_c"])
	assert.Equal(t, "from-d", f.modules.inputsFor("e")["from_d"])

	// Results are persisted under the tenant's partition.
	loc, err := state.Partition("alpha", "c")
	require.NoError(t, err)
	rec, err := f.store.Get(context.Background(), loc)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, state.StatusApplied, rec.Status)
	assert.Equal(t, "10.0.0.0/16", rec.Outputs["v"])
}

func TestApply_PermanentFailurePropagates(t *testing.T) {
	f := newFixture(t, chainCatalog, nil)
	f.modules.failures["c"] = func() error { return retry.Fatal(errors.New("quota exceeded")) }

	rep, err := f.executor(t).Apply(context.Background())
	require.NoError(t, err)
	require.True(t, rep.Failed())

	// d and e never entered Running.
	assert.Empty(t, f.modules.appliedStages())

	cRes := rep.Result("c")
	require.NotNil(t, cRes)
	assert.Equal(t, StatusFailed, cRes.Status)
	assert.Equal(t, 1, cRes.Attempts)
	assert.Empty(t, cRes.PropagatedFrom)

	dRes := rep.Result("d")
	require.NotNil(t, dRes)
	assert.Equal(t, StatusFailed, dRes.Status)
	assert.Equal(t, "c", dRes.PropagatedFrom)

	eRes := rep.Result("e")
	require.NotNil(t, eRes)
	assert.Equal(t, StatusFailed, eRes.Status)
	assert.Equal(t, []string{"c", "d", "e"}, rep.CausalChain("e"))
}

func TestApply_TransientFailureRetries(t *testing.T) {
	f := newFixture(t, chainCatalog, nil)
	f.modules.outputs["c"] = map[string]any{"v": "10.0.0.0/16"}
	f.modules.outputs["d"] = map[string]any{"v": "from-d"}
	f.modules.failures["c"] = failN(2, errors.New("rate limited"))

	rep, err := f.executor(t).Apply(context.Background())
	require.NoError(t, err)
	require.False(t, rep.Failed())

	assert.Equal(t, 3, rep.Result("c").Attempts)
}

func TestApply_TransientFailureExhaustsCap(t *testing.T) {
	f := newFixture(t, chainCatalog, nil)
	f.modules.failures["c"] = func() error { return errors.New("rate limited") }

	rep, err := f.executor(t).Apply(context.Background())
	require.NoError(t, err)

	cRes := rep.Result("c")
	assert.Equal(t, StatusFailed, cRes.Status)
	assert.Equal(t, 3, cRes.Attempts) // initial + 2 retries from fastRetry
	assert.Equal(t, StatusFailed, rep.Result("d").Status)
}

const independentCatalog = `
stages:
  - id: f
    module: {source: f, version: "1"}
  - id: g
    module: {source: g, version: "1"}
`

func TestApply_IndependentStagesRunConcurrently(t *testing.T) {
	f := newFixture(t, independentCatalog, nil)

	// Each stage blocks until the other has started: only true
	// concurrency (bound >= 2) lets the run finish.
	fGate := make(chan struct{})
	gGate := make(chan struct{})
	f.modules.gates["f"] = gGate
	f.modules.gates["g"] = fGate

	var once sync.Once
	f.modules.failures["f"] = func() error { once.Do(func() { close(fGate) }); return nil }
	var once2 sync.Once
	f.modules.failures["g"] = func() error { once2.Do(func() { close(gGate) }); return nil }

	done := make(chan *Report, 1)
	go func() {
		rep, err := f.executor(t).Apply(context.Background())
		require.NoError(t, err)
		done <- rep
	}()

	select {
	case rep := <-done:
		assert.Equal(t, StatusSucceeded, rep.Result("f").Status)
		assert.Equal(t, StatusSucceeded, rep.Result("g").Status)
	case <-time.After(5 * time.Second):
		t.Fatal("independent stages blocked each other")
	}
}

const conditionalCatalog = `
stages:
  - id: dns
    module: {source: dns, version: "1"}
    when: config.enable_dns
    outputs: [zone_id]
    mock_outputs: {zone_id: mock-zone}
  - id: endpoint
    module: {source: endpoint, version: "1"}
    depends_on: [dns]
    inputs:
      zone: {output: dns.zone_id}
`

func TestApply_SkippedByConditionPublishesSentinels(t *testing.T) {
	f := newFixture(t, conditionalCatalog, map[string]any{"enable_dns": false})

	rep, err := f.executor(t).Apply(context.Background())
	require.NoError(t, err)
	require.False(t, rep.Failed())

	assert.Equal(t, StatusSkippedByCondition, rep.Result("dns").Status)
	assert.Equal(t, StatusSucceeded, rep.Result("endpoint").Status)

	// The dependent bound the sentinel, not a missing key.
	assert.True(t, resolve.IsAbsent(f.modules.inputsFor("endpoint")["zone"]))
	assert.Equal(t, []string{"endpoint"}, f.modules.appliedStages())

	// Nothing was persisted for the skipped stage.
	loc, err := state.Partition("alpha", "dns")
	require.NoError(t, err)
	rec, err := f.store.Get(context.Background(), loc)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestNew_ValidationFailures(t *testing.T) {
	t.Run("dangling config ref", func(t *testing.T) {
		f := newFixture(t, `
stages:
  - id: a
    module: {source: a, version: "1"}
    inputs:
      v: {config: missing.key}
`, nil)
		_, err := New(Params{Config: f.cfg, Catalog: f.cat, Graph: f.g, Store: f.store})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing.key")
	})

	t.Run("mandatory input of inactive producer", func(t *testing.T) {
		f := newFixture(t, `
stages:
  - id: a
    module: {source: a, version: "1"}
    when: config.enable_a
    outputs: [x]
    mock_outputs: {x: mock}
  - id: b
    module: {source: b, version: "1"}
    depends_on: [a]
    inputs:
      v: {output: a.x, mandatory: true}
`, map[string]any{"enable_a": false})
		_, err := New(Params{Config: f.cfg, Catalog: f.cat, Graph: f.g, Store: f.store})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mandatory")
	})

	t.Run("activation eval error", func(t *testing.T) {
		f := newFixture(t, `
stages:
  - id: a
    module: {source: a, version: "1"}
    when: config.not_there
`, nil)
		_, err := New(Params{Config: f.cfg, Catalog: f.cat, Graph: f.g, Store: f.store})
		require.Error(t, err)

		var actErr *catalog.ActivationError
		assert.ErrorAs(t, err, &actErr)
	})
}

func TestApply_LockConflictFailsStage(t *testing.T) {
	f := newFixture(t, independentCatalog, nil)

	// Another run holds f's location for the whole test.
	loc, err := state.Partition("alpha", "f")
	require.NoError(t, err)
	_, err = f.store.Lock(context.Background(), loc)
	require.NoError(t, err)

	rep, err := f.executor(t).Apply(context.Background())
	require.NoError(t, err)

	fRes := rep.Result("f")
	assert.Equal(t, StatusFailed, fRes.Status)
	assert.ErrorIs(t, fRes.Err, state.ErrLockConflict)

	// The independent branch is unaffected.
	assert.Equal(t, StatusSucceeded, rep.Result("g").Status)
}

func TestApply_Cancellation(t *testing.T) {
	f := newFixture(t, chainCatalog, nil)

	gate := make(chan struct{})
	f.modules.gates["c"] = gate

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Report, 1)
	go func() {
		rep, err := f.executor(t, func(p *Params) { p.Concurrency = 1 }).Apply(ctx)
		require.NoError(t, err)
		done <- rep
	}()

	// Cancel while c is in flight, then let it reach its safe boundary.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(gate)

	select {
	case rep := <-done:
		assert.True(t, rep.Cancelled)
		// The in-flight stage completed cleanly.
		assert.Equal(t, StatusSucceeded, rep.Result("c").Status)
		// Its dependents never started.
		assert.Equal(t, StatusPending, rep.Result("d").Status)
		assert.Equal(t, StatusPending, rep.Result("e").Status)
		assert.Equal(t, []string{"c"}, f.modules.appliedStages())
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled run did not finish")
	}
}

// deadlineStore fails every operation once its context is cancelled, the
// way a network-backed store does. The in-memory store underneath keeps
// the assertions simple.
type deadlineStore struct {
	inner state.Store
}

func (s deadlineStore) Get(ctx context.Context, loc state.Location) (*state.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.inner.Get(ctx, loc)
}

func (s deadlineStore) Put(ctx context.Context, loc state.Location, rec *state.Record, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.inner.Put(ctx, loc, rec, expectedVersion)
}

func (s deadlineStore) Delete(ctx context.Context, loc state.Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.inner.Delete(ctx, loc)
}

func (s deadlineStore) Lock(ctx context.Context, loc state.Location) (state.Token, error) {
	if err := ctx.Err(); err != nil {
		return state.Token{}, err
	}
	return s.inner.Lock(ctx, loc)
}

func (s deadlineStore) Unlock(ctx context.Context, token state.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.inner.Unlock(ctx, token)
}

func TestApply_CancelledRunPersistsCompletedStages(t *testing.T) {
	f := newFixture(t, independentCatalog, nil)

	gate := make(chan struct{})
	f.modules.gates["f"] = gate
	f.modules.gates["g"] = gate

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Report, 1)
	go func() {
		rep, err := f.executor(t, func(p *Params) {
			p.Store = deadlineStore{inner: f.store}
		}).Apply(ctx)
		require.NoError(t, err)
		done <- rep
	}()

	// Cancel while both modules are in flight, then let them reach their
	// safe boundary.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(gate)

	select {
	case rep := <-done:
		assert.True(t, rep.Cancelled)
		for _, id := range []string{"f", "g"} {
			assert.Equal(t, StatusSucceeded, rep.Result(id).Status)

			// The completed applies were persisted despite the cancel.
			loc, err := state.Partition("alpha", id)
			require.NoError(t, err)
			rec, err := f.store.Get(context.Background(), loc)
			require.NoError(t, err)
			require.NotNil(t, rec, "outputs of a completed apply must survive cancellation")
			assert.Equal(t, state.StatusApplied, rec.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled run did not finish")
	}
}

func TestApply_TargetsReusePersistedPrerequisites(t *testing.T) {
	f := newFixture(t, chainCatalog, nil)
	f.modules.outputs["c"] = map[string]any{"v": "real-c"}
	f.modules.outputs["d"] = map[string]any{"v": "real-d"}

	// First run applies everything.
	_, err := f.executor(t).Apply(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"c", "d", "e"}, f.modules.appliedStages())

	// Targeted run re-applies only e; c and d come from state.
	f.modules.applied = nil
	rep, err := f.executor(t, func(p *Params) { p.Targets = []string{"e"} }).Apply(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"e"}, f.modules.appliedStages())
	assert.True(t, rep.Result("c").Reused)
	assert.True(t, rep.Result("d").Reused)
	assert.Equal(t, "real-d", f.modules.inputsFor("e")["from_d"])
}

func TestPlan_MockThenRealResolution(t *testing.T) {
	f := newFixture(t, chainCatalog, nil)
	f.modules.outputs["c"] = map[string]any{"v": "10.0.0.0/16"}

	// Before anything applies, d plans against c's mock.
	rep, err := f.executor(t).Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mock-c", rep.Result("d").Inputs["from_c"])
	assert.Empty(t, f.modules.appliedStages(), "plan must not apply")

	// Apply c only, then re-plan: the real output replaces the mock.
	_, err = f.executor(t, func(p *Params) { p.Targets = []string{"c"} }).Apply(context.Background())
	require.NoError(t, err)

	rep, err = f.executor(t).Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/16", rep.Result("d").Inputs["from_c"])
	assert.True(t, rep.Result("c").Reused)
}

func TestPlan_SkippedStageYieldsSentinels(t *testing.T) {
	f := newFixture(t, conditionalCatalog, map[string]any{"enable_dns": false})

	rep, err := f.executor(t).Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSkippedByCondition, rep.Result("dns").Status)
	endpoint := rep.Result("endpoint")
	require.Equal(t, StatusReady, endpoint.Status)
	assert.True(t, resolve.IsAbsent(endpoint.Inputs["zone"]))
}

func TestDestroy_ReverseOrder(t *testing.T) {
	f := newFixture(t, chainCatalog, nil)
	f.modules.outputs["c"] = map[string]any{"v": "10.0.0.0/16"}
	f.modules.outputs["d"] = map[string]any{"v": "from-d"}

	_, err := f.executor(t).Apply(context.Background())
	require.NoError(t, err)

	rep, err := f.executor(t).Destroy(context.Background())
	require.NoError(t, err)
	require.False(t, rep.Failed())

	assert.Equal(t, []string{"e", "d", "c"}, f.modules.destroyedStages())

	// Destroyed stages are recorded as such.
	loc, err := state.Partition("alpha", "c")
	require.NoError(t, err)
	rec, err := f.store.Get(context.Background(), loc)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, state.StatusDestroyed, rec.Status)

	// A second destroy finds nothing to do.
	f.modules.destroyed = nil
	rep, err = f.executor(t).Destroy(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.modules.destroyedStages())
	assert.Equal(t, StatusNotApplied, rep.Result("c").Status)
}

func TestDestroy_NeverAppliedReportsNotApplied(t *testing.T) {
	f := newFixture(t, chainCatalog, nil)

	rep, err := f.executor(t).Destroy(context.Background())
	require.NoError(t, err)

	for _, id := range []string{"c", "d", "e"} {
		assert.Equal(t, StatusNotApplied, rep.Result(id).Status)
	}
	assert.Empty(t, f.modules.destroyedStages())
}

func TestDestroy_DistinguishesInactiveFromNeverApplied(t *testing.T) {
	f := newFixture(t, conditionalCatalog, map[string]any{"enable_dns": false})

	rep, err := f.executor(t).Destroy(context.Background())
	require.NoError(t, err)

	// dns is excluded by its predicate; endpoint simply has no state.
	assert.Equal(t, StatusSkippedByCondition, rep.Result("dns").Status)
	assert.Equal(t, StatusNotApplied, rep.Result("endpoint").Status)
}

func TestDestroy_FailureBlocksPrerequisites(t *testing.T) {
	f := newFixture(t, chainCatalog, nil)
	f.modules.outputs["c"] = map[string]any{"v": "10.0.0.0/16"}
	f.modules.outputs["d"] = map[string]any{"v": "from-d"}

	_, err := f.executor(t).Apply(context.Background())
	require.NoError(t, err)

	f.modules.failures["d"] = func() error { return retry.Fatal(errors.New("still in use")) }

	rep, err := f.executor(t).Destroy(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, rep.Result("e").Status)
	assert.Equal(t, StatusFailed, rep.Result("d").Status)

	cRes := rep.Result("c")
	require.NotNil(t, cRes)
	assert.Equal(t, StatusFailed, cRes.Status)
	assert.Equal(t, "d", cRes.PropagatedFrom)
	assert.Equal(t, []string{"e", "d"}, f.modules.destroyedStages())
}

func TestApply_OrderingOnlyDependency(t *testing.T) {
	f := newFixture(t, `
stages:
  - id: base
    module: {source: base, version: "1"}
  - id: late
    module: {source: late, version: "1"}
    after: [base]
`, nil)

	rep, err := f.executor(t, func(p *Params) { p.Concurrency = 1 }).Apply(context.Background())
	require.NoError(t, err)
	require.False(t, rep.Failed())
	assert.Equal(t, []string{"base", "late"}, f.modules.appliedStages())

	// An ordering-only predecessor failure still blocks the successor.
	f2 := newFixture(t, `
stages:
  - id: base
    module: {source: base, version: "1"}
  - id: late
    module: {source: late, version: "1"}
    after: [base]
`, nil)
	f2.modules.failures["base"] = func() error { return retry.Fatal(errors.New("boom")) }

	rep, err = f2.executor(t).Apply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rep.Result("late").Status)
	assert.Equal(t, "base", rep.Result("late").PropagatedFrom)
}

func TestApply_TwoTenantsIsolatedState(t *testing.T) {
	store := state.NewMemoryStore()

	runTenant := func(tenant, vpc string) {
		f := newFixture(t, `
stages:
  - id: network
    module: {source: network, version: "1"}
    outputs: [vpc_id]
    mock_outputs: {vpc_id: mock}
`, map[string]any{"tenant": map[string]any{"id": tenant}})
		f.store = store
		f.modules.outputs["network"] = map[string]any{"vpc_id": vpc}
		_, err := f.executor(t).Apply(context.Background())
		require.NoError(t, err)
	}

	runTenant("alpha", "alpha-vpc")
	runTenant("beta", "beta-vpc")

	ctx := context.Background()
	alphaLoc, err := state.Partition("alpha", "network")
	require.NoError(t, err)
	betaLoc, err := state.Partition("beta", "network")
	require.NoError(t, err)
	require.NotEqual(t, alphaLoc, betaLoc)

	alphaRec, err := store.Get(ctx, alphaLoc)
	require.NoError(t, err)
	assert.Equal(t, "alpha-vpc", alphaRec.Outputs["vpc_id"])

	betaRec, err := store.Get(ctx, betaLoc)
	require.NoError(t, err)
	assert.Equal(t, "beta-vpc", betaRec.Outputs["vpc_id"])
}

func TestApply_ReappliedStageBumpsVersion(t *testing.T) {
	f := newFixture(t, independentCatalog, nil)

	_, err := f.executor(t).Apply(context.Background())
	require.NoError(t, err)
	_, err = f.executor(t).Apply(context.Background())
	require.NoError(t, err)

	loc, err := state.Partition("alpha", "f")
	require.NoError(t, err)
	rec, err := f.store.Get(context.Background(), loc)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)
}

func TestScope_UnknownTarget(t *testing.T) {
	f := newFixture(t, independentCatalog, nil)
	e := f.executor(t, func(p *Params) { p.Targets = []string{"ghost"} })

	_, err := e.Apply(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestApply_DeterministicOrderWhenSerial(t *testing.T) {
	catalogYAML := `
stages:
  - id: zeta
    module: {source: zeta, version: "1"}
  - id: alpha
    module: {source: alpha, version: "1"}
  - id: mid
    module: {source: mid, version: "1"}
`
	for range 3 {
		f := newFixture(t, catalogYAML, nil)
		_, err := f.executor(t, func(p *Params) { p.Concurrency = 1 }).Apply(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, f.modules.appliedStages())
	}
}
