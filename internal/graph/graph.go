package graph

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gammazero/toposort"
)

// Graph is a linked, acyclic task graph. It is read-only after Link.
type Graph struct {
	root      string
	nodes     []*TaskNode // insertion order
	index     map[string]int
	preds     [][]int
	succs     [][]int
	producers map[string]string // output path -> task key
	order     []string
}

// topoOrder sorts the task keys with gammazero/toposort.
func (g *Graph) topoOrder() ([]string, error) {
	var edges []toposort.Edge
	for i, n := range g.nodes {
		if len(g.preds[i]) == 0 {
			// Edge from nil keeps roots in the result.
			edges = append(edges, toposort.Edge{nil, n.Key})
			continue
		}
		for _, p := range g.preds[i] {
			edges = append(edges, toposort.Edge{g.nodes[p].Key, n.Key})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("task graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, key := range sorted {
		if key != nil {
			order = append(order, key.(string))
		}
	}
	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("topological sort lost %d tasks", len(g.nodes)-len(order))
	}
	return order, nil
}

// Root returns the directory relative paths are anchored at.
func (g *Graph) Root() string { return g.root }

// Path resolves a declared path against the root.
func (g *Graph) Path(p string) string { return resolve(g.root, p) }

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns the tasks in expansion order.
func (g *Graph) Nodes() []*TaskNode {
	return append([]*TaskNode(nil), g.nodes...)
}

// Node returns the task with the given key.
func (g *Graph) Node(key string) (*TaskNode, bool) {
	i, ok := g.index[key]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Order returns the task keys in a topological order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Predecessors returns the keys of the direct producers of key's inputs.
func (g *Graph) Predecessors(key string) []string {
	return g.keys(g.preds, key)
}

// Successors returns the keys of the tasks consuming key's outputs.
func (g *Graph) Successors(key string) []string {
	return g.keys(g.succs, key)
}

func (g *Graph) keys(adj [][]int, key string) []string {
	i, ok := g.index[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(adj[i]))
	for _, j := range adj[i] {
		out = append(out, g.nodes[j].Key)
	}
	return out
}

// Producer returns the key of the task declaring path as an output.
func (g *Graph) Producer(path string) (string, bool) {
	key, ok := g.producers[filepath.Clean(path)]
	return key, ok
}

// Descendants returns every task transitively downstream of the given keys,
// excluding the keys themselves unless reachable from another, in
// topological order.
func (g *Graph) Descendants(keys ...string) []string {
	return g.reach(g.succs, keys)
}

// Ancestors returns every task transitively upstream of the given keys, in
// topological order.
func (g *Graph) Ancestors(keys ...string) []string {
	return g.reach(g.preds, keys)
}

func (g *Graph) reach(adj [][]int, keys []string) []string {
	seen := make(map[int]bool)
	var stack []int
	for _, k := range keys {
		if i, ok := g.index[k]; ok {
			stack = append(stack, adj[i]...)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[i] {
			continue
		}
		seen[i] = true
		stack = append(stack, adj[i]...)
	}

	var out []string
	for _, key := range g.order {
		if seen[g.index[key]] {
			out = append(out, key)
		}
	}
	return out
}

// Subgraph restricts the graph to the tasks needed for targets and their
// transitive predecessors. A target is an output path or a task key.
func (g *Graph) Subgraph(targets []string) (*Graph, error) {
	var seeds []string
	for _, t := range targets {
		if key, ok := g.Producer(t); ok {
			seeds = append(seeds, key)
			continue
		}
		if _, ok := g.index[t]; ok {
			seeds = append(seeds, t)
			continue
		}
		return nil, &UnknownTargetError{Target: t}
	}

	keep := make(map[string]bool)
	for _, k := range seeds {
		keep[k] = true
	}
	for _, k := range g.Ancestors(seeds...) {
		keep[k] = true
	}
	return g.restrict(keep), nil
}

func (g *Graph) restrict(keep map[string]bool) *Graph {
	sub := &Graph{
		root:      g.root,
		index:     make(map[string]int),
		producers: make(map[string]string),
	}
	for _, n := range g.nodes {
		if keep[n.Key] {
			sub.index[n.Key] = len(sub.nodes)
			sub.nodes = append(sub.nodes, n)
		}
	}
	sub.preds = make([][]int, len(sub.nodes))
	sub.succs = make([][]int, len(sub.nodes))
	for i, n := range sub.nodes {
		for _, p := range g.preds[g.index[n.Key]] {
			if pi, ok := sub.index[g.nodes[p].Key]; ok {
				sub.preds[i] = append(sub.preds[i], pi)
				sub.succs[pi] = append(sub.succs[pi], i)
			}
		}
		for _, out := range n.Outputs {
			sub.producers[out] = n.Key
		}
	}
	for _, key := range g.order {
		if keep[key] {
			sub.order = append(sub.order, key)
		}
	}
	return sub
}

// String summarizes the graph for logs.
func (g *Graph) String() string {
	rulesSeen := make(map[string]int)
	var names []string
	for _, n := range g.nodes {
		if rulesSeen[n.Rule] == 0 {
			names = append(names, n.Rule)
		}
		rulesSeen[n.Rule]++
	}
	parts := make([]string, 0, len(names))
	for _, r := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", r, rulesSeen[r]))
	}
	return fmt.Sprintf("%d tasks (%s)", len(g.nodes), strings.Join(parts, " "))
}
