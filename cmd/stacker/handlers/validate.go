package handlers

import (
	"context"
	"fmt"

	"github.com/hyvedata/stacker/internal/graph"
	"github.com/hyvedata/stacker/internal/util/async"
)

// Validate runs every load-time check without touching state or modules:
// config merge, catalog structure and mock coverage (both enforced by the
// loaders), then cycle detection, config references and activation in
// parallel. A clean exit means plan and apply will get past validation.
func Validate(ctx context.Context, opts Options) error {
	cfg, cat, err := loadInputs(opts)
	if err != nil {
		return err
	}

	tasks := []async.Task{
		{
			Name: "dependency graph",
			Func: func(context.Context) error {
				_, err := graph.Build(cat)
				return err
			},
		},
		{
			Name: "config references",
			Func: func(context.Context) error {
				return cat.ValidateConfigRefs(cfg)
			},
		},
		{
			Name: "activation",
			Func: func(context.Context) error {
				active, err := cat.EvalActivation(cfg)
				if err != nil {
					return err
				}
				return cat.ValidateMandatoryInputs(active)
			},
		},
	}
	if err := async.RunParallel(ctx, tasks); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "catalog %s is valid for tenant %s (%d stages)\n",
		opts.CatalogPath, cfg.TenantID(), len(cat.Stages))
	return nil
}
