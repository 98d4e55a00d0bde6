package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aristath/seqflow/internal/rules"
)

// Link wires every expanded node to the producers of its inputs and returns
// the finished graph. root anchors relative paths on disk.
//
// An input is satisfied by exactly one producing task or by an existing
// file. Glob inputs are replaced by the sorted set of produced and existing
// paths they match. Link fails, before anything runs, on an output declared
// twice, on unresolved inputs and on cycles.
func (b *Builder) Link(root string) (*Graph, error) {
	producers := make(map[string]string)
	for _, n := range b.nodes {
		for _, out := range n.Outputs {
			if prev, ok := producers[out]; ok && prev != n.Key {
				return nil, &AmbiguousOutputError{Path: out, Producers: []string{prev, n.Key}}
			}
			producers[out] = n.Key
		}
	}

	index := make(map[string]int, len(b.nodes))
	for i, n := range b.nodes {
		index[n.Key] = i
	}

	preds := make([][]int, len(b.nodes))
	succs := make([][]int, len(b.nodes))
	var missing []MissingInput

	for i, n := range b.nodes {
		var resolved []string
		for _, in := range n.Inputs {
			if !isGlob(in) {
				resolved = append(resolved, in)
				continue
			}
			matches, err := expandGlob(root, in, producers)
			if err != nil {
				return nil, &rules.TemplateError{Rule: n.Rule, Msg: fmt.Sprintf("input %s of %s: %v", in, n.Key, err)}
			}
			if len(matches) == 0 {
				missing = append(missing, MissingInput{TaskKey: n.Key, Path: in})
			}
			resolved = append(resolved, matches...)
		}
		n.Inputs = dedupe(resolved)

		seen := make(map[int]bool)
		for _, in := range n.Inputs {
			if p, ok := producers[in]; ok {
				pi := index[p]
				if !seen[pi] {
					seen[pi] = true
					preds[i] = append(preds[i], pi)
					succs[pi] = append(succs[pi], i)
				}
				continue
			}
			if _, err := os.Stat(resolve(root, in)); err != nil {
				missing = append(missing, MissingInput{TaskKey: n.Key, Path: in})
			}
		}
	}

	if len(missing) > 0 {
		return nil, &UnresolvedInputError{Missing: missing}
	}

	g := &Graph{
		root:      root,
		nodes:     append([]*TaskNode(nil), b.nodes...),
		index:     index,
		preds:     preds,
		succs:     succs,
		producers: producers,
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CyclicDependencyError{Cycle: cycle}
	}

	for _, n := range g.nodes {
		cmd, err := n.template.Command(n.binding())
		if err != nil {
			return nil, fmt.Errorf("building command for %s: %w", n.Key, err)
		}
		cmd.Env = append(cmd.Env, envList(n.template.Env)...)
		n.Command = cmd
	}

	order, err := g.topoOrder()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

// expandGlob matches a pattern against produced outputs and the filesystem.
func expandGlob(root, pattern string, producers map[string]string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	for out := range producers {
		if ok, _ := filepath.Match(pattern, out); ok {
			set[out] = true
		}
	}

	onDisk, err := filepath.Glob(resolve(root, pattern))
	if err != nil {
		return nil, err
	}
	for _, m := range onDisk {
		if !filepath.IsAbs(pattern) && root != "" {
			if rel, err := filepath.Rel(root, m); err == nil {
				m = rel
			}
		}
		set[filepath.Clean(m)] = true
	}

	matches := make([]string, 0, len(set))
	for m := range set {
		matches = append(matches, m)
	}
	sort.Strings(matches)
	return matches, nil
}

func resolve(root, p string) string {
	if root == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}
