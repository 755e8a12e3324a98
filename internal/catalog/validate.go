package catalog

import (
	"fmt"

	"github.com/hyvedata/stacker/internal/config"
)

// DanglingRefError reports a stage reference that does not resolve against
// the registry. Caught at load time, long before anything executes.
type DanglingRefError struct {
	Stage string
	Field string
	Ref   string
}

func (e *DanglingRefError) Error() string {
	return fmt.Sprintf("stage %q: %s references unknown stage %q", e.Stage, e.Field, e.Ref)
}

// MockSchemaError reports an output key a consumer references that the
// producer's mock_outputs do not cover. Mocks must be a superset of every
// key actually consumed, or planning would have holes.
type MockSchemaError struct {
	Consumer string
	Producer string
	Key      string
}

func (e *MockSchemaError) Error() string {
	return fmt.Sprintf("stage %q consumes output %q of %q, which has no mock value",
		e.Consumer, e.Key, e.Producer)
}

// MissingBindingError reports a referenced key with neither a declared
// producer output nor a mock: it can never resolve.
type MissingBindingError struct {
	Consumer string
	Producer string
	Key      string
}

func (e *MissingBindingError) Error() string {
	return fmt.Sprintf("stage %q consumes output %q of %q, which declares no such output",
		e.Consumer, e.Key, e.Producer)
}

func (c *Catalog) validate() error {
	for _, d := range c.Stages {
		for _, dep := range d.DependsOn {
			if dep == d.ID {
				return fmt.Errorf("stage %q depends on itself", d.ID)
			}
			if _, ok := c.byID[dep]; !ok {
				return &DanglingRefError{Stage: d.ID, Field: "depends_on", Ref: dep}
			}
		}
		for _, dep := range d.After {
			if dep == d.ID {
				return fmt.Errorf("stage %q is ordered after itself", d.ID)
			}
			if _, ok := c.byID[dep]; !ok {
				return &DanglingRefError{Stage: d.ID, Field: "after", Ref: dep}
			}
		}

		for key, b := range d.Inputs {
			if b.Kind != BindOutput {
				continue
			}
			producer, ok := c.byID[b.Stage]
			if !ok {
				return &DanglingRefError{Stage: d.ID, Field: "inputs." + key, Ref: b.Stage}
			}
			if !c.dependsOn(d, b.Stage) {
				return fmt.Errorf("stage %q input %q consumes output of %q, which is not in depends_on",
					d.ID, key, b.Stage)
			}
			if !producer.DeclaresOutput(b.OutputKey) {
				return &MissingBindingError{Consumer: d.ID, Producer: b.Stage, Key: b.OutputKey}
			}
			if _, ok := producer.MockOutputs[b.OutputKey]; !ok {
				return &MockSchemaError{Consumer: d.ID, Producer: b.Stage, Key: b.OutputKey}
			}
		}
	}
	return nil
}

func (c *Catalog) dependsOn(d *Definition, stage string) bool {
	for _, dep := range d.DependsOn {
		if dep == stage {
			return true
		}
	}
	return false
}

// ValidateConfigRefs checks that every config binding in the catalog
// resolves against the merged tenant configuration. The merge must be
// total: a dangling config reference fails the run before any stage runs.
func (c *Catalog) ValidateConfigRefs(cfg *config.TenantConfig) error {
	for _, d := range c.Stages {
		for key, b := range d.Inputs {
			if b.Kind != BindConfig {
				continue
			}
			if !cfg.Has(b.ConfigKey) {
				return fmt.Errorf("stage %q input %q: config key %q not present in merged tenant configuration",
					d.ID, key, b.ConfigKey)
			}
		}
	}
	return nil
}

// EvalActivation evaluates every activation predicate once against the
// tenant config and returns the per-stage activity map. Stages without a
// predicate are always active.
func (c *Catalog) EvalActivation(cfg *config.TenantConfig) (map[string]bool, error) {
	active := make(map[string]bool, len(c.Stages))
	for _, d := range c.Stages {
		if d.predicate == nil {
			active[d.ID] = true
			continue
		}
		ok, err := d.predicate.Eval(cfg)
		if err != nil {
			return nil, &ActivationError{Stage: d.ID, Expr: d.When, Err: err}
		}
		active[d.ID] = ok
	}
	return active, nil
}

// ValidateMandatoryInputs rejects runs where a mandatory output binding
// points at a stage the activation pass deactivated: the consumer would
// only ever see the absent sentinel, so fail now rather than at apply
// time.
func (c *Catalog) ValidateMandatoryInputs(active map[string]bool) error {
	for _, d := range c.Stages {
		if !active[d.ID] {
			continue
		}
		for key, b := range d.Inputs {
			if b.Kind != BindOutput || !b.Mandatory {
				continue
			}
			if !active[b.Stage] {
				return fmt.Errorf("stage %q input %q is mandatory but producer %q is inactive for this tenant",
					d.ID, key, b.Stage)
			}
		}
	}
	return nil
}
