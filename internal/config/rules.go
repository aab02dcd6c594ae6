package config

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"heatline/internal/progress"
)

var ruleEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
	)
})

// CompileRule turns a CEL expression over `value` into a field validator.
// A rule that fails to evaluate, e.g. `value > 0` on a missing value, or
// yields a non-boolean counts as not filled.
func CompileRule(expr string) (func(any) bool, error) {
	env, err := ruleEnv()
	if err != nil {
		return nil, fmt.Errorf("rule env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", expr, err)
	}
	return func(v any) bool {
		out, _, err := prg.Eval(map[string]any{"value": v})
		if err != nil {
			return false
		}
		ok, isBool := out.Value().(bool)
		return isBool && ok
	}, nil
}

// Descriptors compiles the field list of one phase. A phase without a form
// yields an empty list.
func (c *Config) Descriptors(phase string) ([]progress.Descriptor, error) {
	form, ok := c.Forms[phase]
	if !ok {
		return []progress.Descriptor{}, nil
	}
	out := make([]progress.Descriptor, 0, len(form.Fields))
	for _, f := range form.Fields {
		d := progress.Descriptor{Name: f.Name, Required: f.Required}
		if f.Rule != "" {
			fn, err := CompileRule(f.Rule)
			if err != nil {
				return nil, fmt.Errorf("forms.%s field %s: %w", phase, f.Name, err)
			}
			d.Validator = fn
		}
		out = append(out, d)
	}
	if err := progress.ValidateDescriptors(out); err != nil {
		return nil, fmt.Errorf("forms.%s: %w", phase, err)
	}
	return out, nil
}

// Catalog compiles the descriptors of every configured phase.
func (c *Config) Catalog() (map[string][]progress.Descriptor, error) {
	out := make(map[string][]progress.Descriptor, len(c.Forms))
	for phase := range c.Forms {
		d, err := c.Descriptors(phase)
		if err != nil {
			return nil, err
		}
		out[phase] = d
	}
	return out, nil
}
