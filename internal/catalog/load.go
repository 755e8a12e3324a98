package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a catalog file, compiles activation predicates and runs all
// static validation. A catalog that loads without error is structurally
// sound: ids are unique, every dependency reference resolves, and every
// referenced output key is covered by its producer's declarations.
func Load(path string) (*Catalog, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read, for callers holding the bytes.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog yaml: %w", err)
	}

	if len(c.Stages) == 0 {
		return nil, fmt.Errorf("catalog declares no stages")
	}

	if err := c.index(); err != nil {
		return nil, err
	}

	for _, d := range c.Stages {
		if d.When == "" {
			continue
		}
		p, err := CompilePredicate(d.When)
		if err != nil {
			return nil, &ActivationError{Stage: d.ID, Expr: d.When, Err: err}
		}
		d.predicate = p
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}
