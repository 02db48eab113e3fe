package cfa

import (
	"fmt"

	"github.com/cs-au-dk/reach/utils/dot"
	"github.com/cs-au-dk/reach/utils/graph"
)

// ToDot renders the automaton. Edges are labelled with their operation and
// error locations are highlighted.
func (c *CFA) ToDot() *dot.DotGraph {
	byEnds := map[[2]*Node][]*Edge{}
	for _, e := range c.Edges {
		k := [2]*Node{e.From, e.To}
		byEnds[k] = append(byEnds[k], e)
	}

	dg := c.Graph().ToDotGraph(c.Nodes, &graph.VisualizationConfig[*Node]{
		NodeAttrs: func(n *Node) (string, dot.DotAttrs) {
			attrs := dot.DotAttrs{"label": n.String()}
			switch {
			case n.IsError():
				attrs["fillcolor"] = "tomato"
			case n == c.Entry:
				attrs["fillcolor"] = "lightblue"
			}
			return fmt.Sprintf("N%d", n.ID), attrs
		},
		EdgeAttrs: func(from, to *Node) dot.DotAttrs {
			var label string
			for i, e := range byEnds[[2]*Node{from, to}] {
				if i > 0 {
					label += "\n"
				}
				label += edgeLabel(e)
			}
			return dot.DotAttrs{"label": label}
		},
	})
	dg.Name = "CFA"
	dg.Title = c.Function
	return dg
}

func edgeLabel(e *Edge) string {
	switch e.Kind {
	case Assume:
		return "[" + e.Condition().String() + "]"
	case Assign:
		return e.Var + " := " + e.Expr.String()
	case Havoc:
		return e.Var + " := *"
	case Error:
		return "error"
	case Return:
		return "return"
	}
	return e.Label
}
