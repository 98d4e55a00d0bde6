package graph

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/seqflow/internal/manifest"
	"github.com/aristath/seqflow/internal/rules"
)

// Builder expands rule templates into task nodes. Call Link once all
// templates are expanded.
type Builder struct {
	samples *manifest.Samples
	catalog *rules.Catalog
	nodes   []*TaskNode
	byKey   map[string]*TaskNode
}

// NewBuilder returns a builder over a sample collection. The catalog
// supplies tool bindings.
func NewBuilder(samples *manifest.Samples, catalog *rules.Catalog) *Builder {
	return &Builder{
		samples: samples,
		catalog: catalog,
		byKey:   make(map[string]*TaskNode),
	}
}

// ExpandAll expands every catalog rule by its scope, in registration order.
func (b *Builder) ExpandAll() error {
	for _, t := range b.catalog.Rules() {
		var err error
		switch t.Scope {
		case rules.ScopeSample:
			_, err = b.ExpandPerSample(t)
		case rules.ScopeGroup:
			_, err = b.ExpandPerGroup(t, b.samples.Groups())
		case rules.ScopeGlobal:
			_, err = b.ExpandGlobal(t)
		default:
			err = &rules.TemplateError{Rule: t.Name, Msg: fmt.Sprintf("unsupported scope %v", t.Scope)}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ExpandPerSample adds one node per sample, in manifest order.
func (b *Builder) ExpandPerSample(t *rules.RuleTemplate) ([]*TaskNode, error) {
	all := b.samples.All()
	nodes := make([]*TaskNode, 0, len(all))
	for i := range all {
		s := all[i]
		n, err := b.instantiate(t, s.ID, rules.Wildcards{Sample: &s})
		if err != nil {
			return nil, err
		}
		n.Sample = s.ID
		n.Group = s.Group
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// ExpandPerGroup adds one node per group. Each node's inputs cover exactly
// the members of its group, in manifest order.
func (b *Builder) ExpandPerGroup(t *rules.RuleTemplate, groups []string) ([]*TaskNode, error) {
	nodes := make([]*TaskNode, 0, len(groups))
	for _, g := range groups {
		members := b.samples.Members(g)
		if len(members) == 0 {
			return nil, &rules.TemplateError{Rule: t.Name, Msg: fmt.Sprintf("group %q has no samples", g)}
		}
		n, err := b.instantiate(t, g, rules.Wildcards{Group: g, Samples: members})
		if err != nil {
			return nil, err
		}
		n.Group = g
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// ExpandGlobal adds the single node of a global rule.
func (b *Builder) ExpandGlobal(t *rules.RuleTemplate) (*TaskNode, error) {
	return b.instantiate(t, "", rules.Wildcards{
		Samples: b.samples.All(),
		Groups:  b.samples.Groups(),
	})
}

func (b *Builder) instantiate(t *rules.RuleTemplate, binding string, w rules.Wildcards) (*TaskNode, error) {
	key := TaskKey(t.Name, binding)
	if _, exists := b.byKey[key]; exists {
		return nil, &rules.DuplicateRuleError{Name: key}
	}

	var inputs []string
	if t.Inputs != nil {
		var err error
		inputs, err = t.Inputs.Resolve(w)
		if err != nil {
			return nil, &rules.TemplateError{Rule: t.Name, Msg: fmt.Sprintf("inputs of %s: %v", key, err)}
		}
	}
	outputs, err := t.Outputs.Resolve(w)
	if err != nil {
		return nil, &rules.TemplateError{Rule: t.Name, Msg: fmt.Sprintf("outputs of %s: %v", key, err)}
	}
	if len(outputs) == 0 {
		return nil, &rules.TemplateError{Rule: t.Name, Msg: fmt.Sprintf("%s resolves to no outputs", key)}
	}

	var tool rules.ToolBinding
	if t.Tool != "" {
		var ok bool
		if tool, ok = b.catalog.Tool(t.Tool); !ok {
			return nil, &rules.TemplateError{Rule: t.Name, Msg: fmt.Sprintf("tool %q is not bound", t.Tool)}
		}
	}

	params := make(map[string]string, len(t.Params))
	for k, v := range t.Params {
		params[k] = v
	}

	n := &TaskNode{
		Key:       key,
		Rule:      t.Name,
		Scope:     t.Scope,
		Inputs:    cleanAll(inputs),
		Outputs:   cleanAll(outputs),
		Params:    params,
		Tool:      tool,
		Resources: t.Resources,
		Timeout:   t.Timeout,
		Retries:   t.Retries,
		template:  t,
	}
	b.nodes = append(b.nodes, n)
	b.byKey[key] = n
	return n, nil
}

// Nodes returns the nodes expanded so far, in insertion order.
func (b *Builder) Nodes() []*TaskNode {
	return append([]*TaskNode(nil), b.nodes...)
}

func cleanAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}
