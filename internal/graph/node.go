// Package graph instantiates rule templates over a sample collection and
// links the resulting tasks into a dependency graph.
package graph

import (
	"time"

	"github.com/aristath/seqflow/internal/backend"
	"github.com/aristath/seqflow/internal/rules"
)

// TaskNode is one rule template bound to a sample, a group, or nothing.
type TaskNode struct {
	Key       string // rule, rule:sample or rule:group
	Rule      string
	Scope     rules.Scope
	Sample    string
	Group     string
	Inputs    []string // glob inputs are replaced by their matches during Link
	Outputs   []string
	Params    map[string]string
	Tool      rules.ToolBinding
	Command   backend.Command // set by Link
	Resources rules.Resources
	Timeout   time.Duration
	Retries   int

	template *rules.RuleTemplate
}

// TaskKey builds the key of a task from its rule and binding.
func TaskKey(rule, binding string) string {
	if binding == "" {
		return rule
	}
	return rule + ":" + binding
}

func (n *TaskNode) binding() rules.Binding {
	params := make(map[string]string, len(n.Params))
	for k, v := range n.Params {
		params[k] = v
	}
	return rules.Binding{
		Key:     n.Key,
		Rule:    n.Rule,
		Sample:  n.Sample,
		Group:   n.Group,
		Inputs:  append([]string(nil), n.Inputs...),
		Outputs: append([]string(nil), n.Outputs...),
		Params:  params,
		Threads: n.Resources.Weight(),
		Tool:    n.Tool,
	}
}
