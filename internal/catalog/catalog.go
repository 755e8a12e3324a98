// Package catalog holds the static stage registry.
//
// A catalog is the versioned set of stage definitions for a platform:
// which stages exist, which module implements each one, how stages depend
// on each other, how their inputs bind to tenant configuration or to
// upstream outputs, and the mock outputs used while planning. Definitions
// are loaded once at orchestration start and never mutated afterwards.
package catalog

import (
	"fmt"
	"regexp"
)

// ModuleRef points at the provisioning module implementing a stage. The
// orchestrator treats it as opaque; only the module registry interprets it.
type ModuleRef struct {
	Source  string `yaml:"source"`
	Version string `yaml:"version"`
}

func (m ModuleRef) String() string {
	return fmt.Sprintf("%s@%s", m.Source, m.Version)
}

// Definition is one stage in the catalog.
type Definition struct {
	ID     string    `yaml:"id"`
	Module ModuleRef `yaml:"module"`

	// DependsOn lists stages whose outputs this stage may consume.
	DependsOn []string `yaml:"depends_on"`

	// After lists ordering-only prerequisites: they constrain scheduling
	// but supply no values.
	After []string `yaml:"after"`

	// Inputs binds each input key to a literal, a tenant config lookup or
	// an upstream output.
	Inputs map[string]Binding `yaml:"inputs"`

	// OutputKeys declares the outputs a successful apply produces. A
	// skipped stage publishes every key here bound to the absent sentinel.
	OutputKeys []string `yaml:"outputs"`

	// MockOutputs are the planning-time placeholders for this stage's
	// outputs. They must cover every key any consumer references.
	MockOutputs map[string]any `yaml:"mock_outputs"`

	// When is an optional activation predicate over the tenant config.
	// Empty means always active.
	When string `yaml:"when"`

	predicate *Predicate
}

// Predicate returns the compiled activation predicate, or nil when the
// stage is unconditional.
func (d *Definition) Predicate() *Predicate {
	return d.predicate
}

// DeclaresOutput reports whether key appears in the stage's declared
// output keys or its mock outputs.
func (d *Definition) DeclaresOutput(key string) bool {
	for _, k := range d.OutputKeys {
		if k == key {
			return true
		}
	}
	_, ok := d.MockOutputs[key]
	return ok
}

// Catalog is the loaded, validated stage registry.
type Catalog struct {
	Version int           `yaml:"version"`
	Stages  []*Definition `yaml:"stages"`

	byID map[string]*Definition
}

// Stage looks a definition up by id.
func (c *Catalog) Stage(id string) (*Definition, bool) {
	d, ok := c.byID[id]
	return d, ok
}

var stageIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func (c *Catalog) index() error {
	c.byID = make(map[string]*Definition, len(c.Stages))
	for _, d := range c.Stages {
		if !stageIDPattern.MatchString(d.ID) {
			return fmt.Errorf("invalid stage id %q: must match %s", d.ID, stageIDPattern)
		}
		if _, dup := c.byID[d.ID]; dup {
			return fmt.Errorf("duplicate stage id %q", d.ID)
		}
		c.byID[d.ID] = d
	}
	return nil
}
