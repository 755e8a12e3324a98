package catalog

import (
	"fmt"
	"regexp"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/hyvedata/stacker/internal/config"
)

// Predicate is a compiled activation expression over the tenant config,
// e.g. `config.platform.tier == "enterprise"` or
// `match("^prod-", config.environment)`. It is evaluated exactly once per
// run, before scheduling.
type Predicate struct {
	src  string
	expr hclsyntax.Expression
}

// ActivationError reports a predicate that could not be compiled or
// evaluated. It is a validation-class failure: the run aborts before any
// stage applies.
type ActivationError struct {
	Stage string
	Expr  string
	Err   error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("stage %q: activation predicate %q: %v", e.Stage, e.Expr, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }

// CompilePredicate parses src as a native-syntax HCL expression.
func CompilePredicate(src string) (*Predicate, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "predicate", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	return &Predicate{src: src, expr: expr}, nil
}

// String returns the predicate source text.
func (p *Predicate) String() string { return p.src }

// Eval evaluates the predicate against the tenant config. The expression
// sees the merged document as the `config` object and must produce a bool.
func (p *Predicate) Eval(cfg *config.TenantConfig) (bool, error) {
	cfgVal, err := ctyFromGo(cfg.Values())
	if err != nil {
		return false, fmt.Errorf("tenant config not expressible: %w", err)
	}

	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"config": cfgVal},
		Functions: predicateFunctions,
	}

	v, diags := p.expr.Value(ctx)
	if diags.HasErrors() {
		return false, diags
	}
	if v.Type() != cty.Bool || v.IsNull() {
		return false, fmt.Errorf("predicate produced %s, want bool", v.Type().FriendlyName())
	}
	return v.True(), nil
}

// predicateFunctions is the deliberately small function table available to
// activation predicates.
var predicateFunctions = map[string]function.Function{
	"match": function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "pattern", Type: cty.String},
			{Name: "s", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			ok, err := regexp.MatchString(args[0].AsString(), args[1].AsString())
			if err != nil {
				return cty.NilVal, err
			}
			return cty.BoolVal(ok), nil
		},
	}),
}

// ctyFromGo converts a YAML-shaped Go value into a cty value for
// expression evaluation.
func ctyFromGo(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(t))
		for i, e := range t {
			ev, err := ctyFromGo(e)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(t))
		for k, e := range t {
			ev, err := ctyFromGo(e)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported value type %T", v)
	}
}
