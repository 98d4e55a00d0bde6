package rules

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the top level of a rules file.
type hclFile struct {
	Rules  []*hclRule `hcl:"rule,block"`
	Remain hcl.Body   `hcl:",remain"`
}

// hclRule is one `rule "<name>" { ... }` block.
type hclRule struct {
	Name      string            `hcl:"name,label"`
	Scope     string            `hcl:"scope,optional"`
	Tool      string            `hcl:"tool,optional"`
	Inputs    []string          `hcl:"inputs,optional"`
	Outputs   []string          `hcl:"outputs"`
	Command   []string          `hcl:"command"`
	Params    hcl.Expression    `hcl:"params,optional"`
	Threads   int               `hcl:"threads,optional"`
	Timeout   string            `hcl:"timeout,optional"`
	Retries   int               `hcl:"retries,optional"`
	Exclusive []string          `hcl:"exclusive,optional"`
	Env       map[string]string `hcl:"env,optional"`
}

// LoadHCL parses a rules file and registers its rules in cat, in file order.
func LoadHCL(cat *Catalog, path string) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("parsing rules file %s: %w", path, diags)
	}
	return registerHCL(cat, file)
}

// ParseHCL parses rules from source and registers them in cat. filename is
// used in diagnostics only.
func ParseHCL(cat *Catalog, src []byte, filename string) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("parsing rules file %s: %w", filename, diags)
	}
	return registerHCL(cat, file)
}

func registerHCL(cat *Catalog, file *hcl.File) error {
	var f hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		return fmt.Errorf("decoding rules: %w", diags)
	}

	for _, r := range f.Rules {
		t, err := r.template()
		if err != nil {
			return err
		}
		if err := cat.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (r *hclRule) template() (*RuleTemplate, error) {
	scope, err := ParseScope(r.Scope)
	if err != nil {
		return nil, &TemplateError{Rule: r.Name, Msg: err.Error()}
	}
	if len(r.Command) == 0 {
		return nil, &TemplateError{Rule: r.Name, Msg: "empty command"}
	}
	if len(r.Outputs) == 0 {
		return nil, &TemplateError{Rule: r.Name, Msg: "no outputs declared"}
	}

	var timeout time.Duration
	if r.Timeout != "" {
		timeout, err = time.ParseDuration(r.Timeout)
		if err != nil {
			return nil, &TemplateError{Rule: r.Name, Msg: fmt.Sprintf("invalid timeout %q: %v", r.Timeout, err)}
		}
	}

	params, err := decodeParams(r.Params)
	if err != nil {
		return nil, &TemplateError{Rule: r.Name, Msg: err.Error()}
	}

	// Catch bad paths now rather than at link time.
	for _, p := range append(append([]string(nil), r.Inputs...), r.Outputs...) {
		if _, _, err := inspect(p); err != nil {
			return nil, &TemplateError{Rule: r.Name, Msg: err.Error()}
		}
	}

	return &RuleTemplate{
		Name:      r.Name,
		Scope:     scope,
		Tool:      r.Tool,
		Inputs:    Templates(r.Inputs),
		Outputs:   Templates(r.Outputs),
		Params:    params,
		Command:   Argv(r.Command...),
		Resources: Resources{Threads: r.Threads, Exclusive: r.Exclusive},
		Timeout:   timeout,
		Retries:   r.Retries,
		Env:       r.Env,
	}, nil
}

// decodeParams evaluates a params object into strings. Numbers and bools
// are formatted; nested values are rejected.
func decodeParams(expr hcl.Expression) (map[string]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("params: %s", diags.Error())
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("params: value not known")
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("params must be an object, got %s", ty.FriendlyName())
	}

	params := make(map[string]string)
	for name, v := range val.AsValueMap() {
		s, err := ctyString(v)
		if err != nil {
			return nil, fmt.Errorf("params.%s: %w", name, err)
		}
		params[name] = s
	}
	return params, nil
}

func ctyString(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", fmt.Errorf("null value")
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			i, _ := bf.Int(nil)
			return i.String(), nil
		}
		return bf.Text('g', -1), nil
	case cty.Bool:
		if v.True() {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("unsupported type %s", v.Type().FriendlyName())
	}
}
