package graph

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// WriteDOT writes the graph in Graphviz DOT format, one node per task
// labelled with its rule and binding.
func (g *Graph) WriteDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph seqflow {")
	fmt.Fprintln(bw, "  rankdir=LR;")
	fmt.Fprintln(bw, "  node [shape=box];")

	for _, n := range g.nodes {
		label := n.Rule
		switch {
		case n.Sample != "":
			label += `\n` + n.Sample
		case n.Group != "":
			label += `\n[` + n.Group + `]`
		}
		fmt.Fprintf(bw, "  %s [label=\"%s\"];\n", strconv.Quote(n.Key), label)
	}
	for i, n := range g.nodes {
		for _, s := range g.succs[i] {
			fmt.Fprintf(bw, "  %s -> %s;\n", strconv.Quote(n.Key), strconv.Quote(g.nodes[s].Key))
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
