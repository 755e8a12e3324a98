// Package resolve turns a stage's input bindings into concrete values.
//
// Resolution is the only place mock outputs, real outputs and the skip
// sentinel meet: a dependency that has materialized supplies its real
// value, a dependency that has not yet run supplies its declared mock (in
// plan mode only), and a dependency skipped by condition supplies the
// absent sentinel for every declared key.
package resolve

import (
	"fmt"

	"github.com/hyvedata/stacker/internal/catalog"
	"github.com/hyvedata/stacker/internal/config"
)

// Outputs is one stage's named output set.
type Outputs map[string]any

// Mode selects whether mock substitution is allowed.
type Mode int

const (
	// ModePlan resolves unmaterialized dependencies to their mocks.
	ModePlan Mode = iota
	// ModeApply forbids mocks: an unmaterialized dependency is an error.
	ModeApply
)

func (m Mode) String() string {
	if m == ModePlan {
		return "plan"
	}
	return "apply"
}

type absentValue struct{}

func (absentValue) String() string { return "<absent>" }

// Absent is the sentinel bound to every declared output key of a stage
// that was skipped by condition. Consumers accept it as valid input unless
// they marked the binding mandatory.
var Absent any = absentValue{}

// IsAbsent reports whether v is the skip sentinel.
func IsAbsent(v any) bool {
	_, ok := v.(absentValue)
	return ok
}

// UnmaterializedError reports an output reference that has no real value
// in apply mode. Mocks must never reach a real apply, so this is fatal to
// the consuming stage.
type UnmaterializedError struct {
	Consumer string
	Producer string
	Key      string
}

func (e *UnmaterializedError) Error() string {
	return fmt.Sprintf("stage %q input references output %q of %q, which has not materialized",
		e.Consumer, e.Key, e.Producer)
}

// Resolver resolves input bindings for one run. It accumulates
// materialized outputs as stages finish; the scheduler is its only writer.
type Resolver struct {
	cfg     *config.TenantConfig
	cat     *catalog.Catalog
	mode    Mode
	outputs map[string]Outputs
}

// New creates a resolver for one run in the given mode.
func New(cfg *config.TenantConfig, cat *catalog.Catalog, mode Mode) *Resolver {
	return &Resolver{
		cfg:     cfg,
		cat:     cat,
		mode:    mode,
		outputs: make(map[string]Outputs),
	}
}

// SetOutputs records a stage's real outputs. From this point its mock
// values are never consulted again within the run.
func (r *Resolver) SetOutputs(stageID string, out Outputs) {
	cp := make(Outputs, len(out))
	for k, v := range out {
		cp[k] = v
	}
	r.outputs[stageID] = cp
}

// MarkSkipped publishes the skipped stage's output set: every declared key
// present, all bound to the absent sentinel, so dependents bind cleanly
// instead of failing on missing keys.
func (r *Resolver) MarkSkipped(d *catalog.Definition) {
	out := make(Outputs, len(d.OutputKeys)+len(d.MockOutputs))
	for _, k := range d.OutputKeys {
		out[k] = Absent
	}
	for k := range d.MockOutputs {
		out[k] = Absent
	}
	r.outputs[d.ID] = out
}

// Resolved returns a stage's materialized output set, if any.
func (r *Resolver) Resolved(stageID string) (Outputs, bool) {
	out, ok := r.outputs[stageID]
	return out, ok
}

// Inputs resolves every binding of the stage. The returned map is freshly
// allocated per call.
func (r *Resolver) Inputs(d *catalog.Definition) (map[string]any, error) {
	inputs := make(map[string]any, len(d.Inputs))
	for key, b := range d.Inputs {
		v, err := r.resolveBinding(d, key, b)
		if err != nil {
			return nil, err
		}
		inputs[key] = v
	}
	return inputs, nil
}

func (r *Resolver) resolveBinding(d *catalog.Definition, key string, b catalog.Binding) (any, error) {
	switch b.Kind {
	case catalog.BindLiteral:
		return b.Literal, nil

	case catalog.BindConfig:
		v, ok := r.cfg.Get(b.ConfigKey)
		if !ok {
			return nil, fmt.Errorf("stage %q input %q: config key %q not found", d.ID, key, b.ConfigKey)
		}
		return v, nil

	case catalog.BindOutput:
		return r.resolveOutputRef(d, key, b)

	default:
		return nil, fmt.Errorf("stage %q input %q: unknown binding kind %v", d.ID, key, b.Kind)
	}
}

func (r *Resolver) resolveOutputRef(d *catalog.Definition, key string, b catalog.Binding) (any, error) {
	if out, ok := r.outputs[b.Stage]; ok {
		v, ok := out[b.OutputKey]
		if !ok {
			return nil, fmt.Errorf("stage %q input %q: dependency %q materialized without output %q",
				d.ID, key, b.Stage, b.OutputKey)
		}
		if b.Mandatory && IsAbsent(v) {
			return nil, fmt.Errorf("stage %q input %q is mandatory but %q was skipped", d.ID, key, b.Stage)
		}
		return v, nil
	}

	if r.mode == ModeApply {
		return nil, &UnmaterializedError{Consumer: d.ID, Producer: b.Stage, Key: b.OutputKey}
	}

	producer, ok := r.cat.Stage(b.Stage)
	if !ok {
		return nil, fmt.Errorf("stage %q input %q: unknown dependency %q", d.ID, key, b.Stage)
	}
	mock, ok := producer.MockOutputs[b.OutputKey]
	if !ok {
		// Load-time validation requires mock coverage, so this only fires
		// on a catalog that bypassed Parse.
		return nil, &catalog.MockSchemaError{Consumer: d.ID, Producer: b.Stage, Key: b.OutputKey}
	}
	return mock, nil
}
