// Package handlers implements the business logic for CLI commands.
//
// Handlers are framework-agnostic: the commands package parses flags and
// delegates here, and everything a handler touches is behind an injectable
// factory so tests can swap backends without a cloud account.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyvedata/stacker/internal/catalog"
	"github.com/hyvedata/stacker/internal/config"
	"github.com/hyvedata/stacker/internal/executor"
	"github.com/hyvedata/stacker/internal/graph"
	"github.com/hyvedata/stacker/internal/state"
	"github.com/hyvedata/stacker/pkg/module"
)

// Options carries the flag values shared by the run commands.
type Options struct {
	// Tenant names the run's tenant. When no overlay path is given the
	// overlay defaults to tenants/<tenant>.yaml.
	Tenant string

	CatalogPath  string
	DefaultsPath string
	OverlayPath  string

	// Stages restricts the run to a target subset. Empty means all.
	Stages []string

	Concurrency int
	StateDir    string
	Verbose     bool
}

// DefaultStateDir is where the file-backed store lives when no S3 bucket
// is configured.
const DefaultStateDir = ".stacker/state"

// Factory function variables - can be replaced in tests for dependency injection.
var (
	loadTenantConfig = config.Load
	loadCatalog      = catalog.Load

	newFileStore = func(dir string) (state.Store, error) {
		return state.NewFileStore(dir)
	}
	newS3Store = func(ctx context.Context, opts state.S3Options) (state.Store, error) {
		return state.NewS3Store(ctx, opts)
	}

	// moduleResolver is where stages find their implementations. Embedding
	// programs register into module.Default before Execute.
	moduleResolver module.Resolver = module.Default

	// stdout is the report destination.
	stdout io.Writer = os.Stdout
)

// runtime is everything a run command needs, assembled once per invocation.
type runtime struct {
	cfg *config.TenantConfig
	cat *catalog.Catalog
	g   *graph.Graph
	log logr.Logger
}

func buildRuntime(opts Options) (*runtime, error) {
	cfg, cat, err := loadInputs(opts)
	if err != nil {
		return nil, err
	}

	g, err := graph.Build(cat)
	if err != nil {
		return nil, err
	}

	return &runtime{cfg: cfg, cat: cat, g: g, log: newLogger(opts.Verbose)}, nil
}

// loadInputs loads the merged tenant configuration and the stage catalog.
// The tenant flag cross-checks the configured tenant id so a run can
// never write into another tenant's partition by mixing up files.
func loadInputs(opts Options) (*config.TenantConfig, *catalog.Catalog, error) {
	overlay := opts.OverlayPath
	if overlay == "" && opts.Tenant != "" {
		overlay = filepath.Join("tenants", opts.Tenant+".yaml")
	}

	cfg, err := loadTenantConfig(opts.DefaultsPath, overlay)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tenant configuration: %w", err)
	}
	if opts.Tenant != "" && cfg.TenantID() != opts.Tenant {
		return nil, nil, fmt.Errorf("tenant flag %q does not match configured tenant id %q",
			opts.Tenant, cfg.TenantID())
	}

	cat, err := loadCatalog(opts.CatalogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return cfg, cat, nil
}

// newLogger writes structured key/value lines to stderr. Verbose raises
// the threshold so per-stage progress shows up.
func newLogger(verbose bool) logr.Logger {
	verbosity := 0
	if verbose {
		verbosity = 1
	}
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: verbosity})
}

// selectStore picks the state backend: S3 when STACKER_S3_BUCKET is set,
// else the local file store under --state-dir.
func selectStore(ctx context.Context, opts Options) (state.Store, error) {
	if bucket := os.Getenv("STACKER_S3_BUCKET"); bucket != "" {
		return newS3Store(ctx, state.S3Options{
			Bucket:    bucket,
			Prefix:    os.Getenv("STACKER_S3_PREFIX"),
			Region:    os.Getenv("STACKER_S3_REGION"),
			Endpoint:  os.Getenv("STACKER_S3_ENDPOINT"),
			AccessKey: os.Getenv("STACKER_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("STACKER_S3_SECRET_KEY"),
		})
	}

	dir := opts.StateDir
	if dir == "" {
		dir = DefaultStateDir
	}
	return newFileStore(dir)
}

func newExecutor(ctx context.Context, opts Options, withModules bool) (*executor.Executor, *runtime, error) {
	rt, err := buildRuntime(opts)
	if err != nil {
		return nil, nil, err
	}

	store, err := selectStore(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	var modules module.Resolver
	if withModules {
		modules = moduleResolver
	}

	exec, err := executor.New(executor.Params{
		Config:      rt.cfg,
		Catalog:     rt.cat,
		Graph:       rt.g,
		Store:       store,
		Modules:     modules,
		Targets:     opts.Stages,
		Concurrency: opts.Concurrency,
		Logger:      rt.log,
		Observer:    executor.LogObserver{Logger: rt.log.V(1)},
		Metrics:     executor.NewMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		return nil, nil, err
	}
	return exec, rt, nil
}

// runFailed summarizes a failed run for the process exit error.
func runFailed(rep *executor.Report) error {
	var failed []string
	for _, res := range rep.Results {
		if res.Status == executor.StatusFailed && res.PropagatedFrom == "" {
			failed = append(failed, res.Stage)
		}
	}
	return fmt.Errorf("%s failed for tenant %s: %s", rep.Mode, rep.Tenant, strings.Join(failed, ", "))
}
