package catalog

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// BindingKind discriminates the three input binding forms.
type BindingKind int

const (
	// BindLiteral binds a constant value.
	BindLiteral BindingKind = iota
	// BindConfig binds a dotted lookup into the tenant configuration.
	BindConfig
	// BindOutput binds a named output of a dependency stage.
	BindOutput
)

func (k BindingKind) String() string {
	switch k {
	case BindLiteral:
		return "literal"
	case BindConfig:
		return "config"
	case BindOutput:
		return "output"
	default:
		return fmt.Sprintf("BindingKind(%d)", int(k))
	}
}

// Binding is a tagged variant: exactly one of the three forms is set,
// according to Kind. YAML forms:
//
//	cidr:    {config: network.cidr}
//	tier:    {literal: standard}
//	project: {output: project.id, mandatory: true}
//
// Mandatory marks an output binding that rejects the absent sentinel a
// skipped producer publishes; the violation is caught at validation time.
type Binding struct {
	Kind      BindingKind
	Literal   any
	ConfigKey string
	Stage     string
	OutputKey string
	Mandatory bool
}

type rawBinding struct {
	Literal   yaml.Node `yaml:"literal"`
	Config    string    `yaml:"config"`
	Output    string    `yaml:"output"`
	Mandatory bool      `yaml:"mandatory"`
}

// UnmarshalYAML decodes the tagged form, rejecting bindings that set zero
// or more than one variant.
func (b *Binding) UnmarshalYAML(node *yaml.Node) error {
	var raw rawBinding
	if err := node.Decode(&raw); err != nil {
		return err
	}

	set := 0
	if !raw.Literal.IsZero() {
		set++
	}
	if raw.Config != "" {
		set++
	}
	if raw.Output != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("binding must set exactly one of literal, config, output (got %d)", set)
	}

	b.Mandatory = raw.Mandatory

	switch {
	case !raw.Literal.IsZero():
		b.Kind = BindLiteral
		var v any
		if err := raw.Literal.Decode(&v); err != nil {
			return fmt.Errorf("invalid literal binding: %w", err)
		}
		b.Literal = v
	case raw.Config != "":
		b.Kind = BindConfig
		b.ConfigKey = raw.Config
	default:
		b.Kind = BindOutput
		stage, key, ok := strings.Cut(raw.Output, ".")
		if !ok || stage == "" || key == "" {
			return fmt.Errorf("output binding %q must have the form stage.key", raw.Output)
		}
		b.Stage = stage
		b.OutputKey = key
	}

	return nil
}
