package arg

import (
	"fmt"
	"strings"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/utils/dot"
	"github.com/cs-au-dk/reach/utils/graph"
)

// ToDot renders the graph with nodes grouped by CFA location. Covering links
// are drawn dashed, targets red and covered nodes grey.
func (g *ARG) ToDot() *dot.DotGraph {
	nodes := g.Nodes()
	dg := g.ChildGraph().ToDotGraph(nodes, &graph.VisualizationConfig[ID]{
		ClusterKey: func(id ID) any {
			if loc, ok := cpa.Location(g.nodes[id].State); ok {
				return loc
			}
			return nil
		},
		ClusterAttrs: func(key any) (string, dot.DotAttrs) {
			loc := key.(*cfa.Node)
			return fmt.Sprintf("N%d", loc.ID), dot.DotAttrs{"label": loc.String(), "style": "rounded"}
		},
		NodeAttrs: func(id ID) (string, dot.DotAttrs) {
			n := g.nodes[id]
			attrs := dot.DotAttrs{"label": fmt.Sprintf("%d\n%v", id, n.State)}
			switch {
			case n.IsTarget():
				attrs["fillcolor"] = "tomato"
			case n.IsCovered():
				attrs["fillcolor"] = "grey"
			}
			return fmt.Sprint(id), attrs
		},
		EdgeAttrs: func(from, to ID) dot.DotAttrs {
			return dot.DotAttrs{"label": g.edgeLabel(from, to)}
		},
	})

	for _, id := range nodes {
		if by := g.nodes[id].coveredBy; by != None {
			dg.Edges = append(dg.Edges, &dot.DotEdge{
				From:  dg.Node(fmt.Sprint(id)),
				To:    dg.Node(fmt.Sprint(by)),
				Attrs: dot.DotAttrs{"style": "dashed", "label": "covered by"},
			})
		}
	}
	dg.Name = "ARG"
	return dg
}

// edgeLabel describes the edge between two nodes without the CFA node
// identifiers.
func (g *ARG) edgeLabel(from, to ID) string {
	e := g.nodes[to].inEdges[from]
	if e == nil {
		return ""
	}
	s := e.String()
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			return s[i+1 : j]
		}
	}
	return s
}

// Dump renders the graph as indented text, children below their parent.
// Nodes with several parents are printed once per parent.
func (g *ARG) Dump() string {
	var sb strings.Builder
	var rec func(id ID, depth int, via string)
	rec = func(id ID, depth int, via string) {
		n := g.nodes[id]
		sb.WriteString(strings.Repeat("  ", depth))
		if depth > 0 {
			sb.WriteString("-{" + via + "}-> ")
		}
		fmt.Fprintf(&sb, "%d %v", id, n.State)
		if n.IsTarget() {
			sb.WriteString(" TARGET")
		}
		if n.IsCovered() {
			fmt.Fprintf(&sb, " covered-by %d", n.coveredBy)
		}
		sb.WriteString("\n")
		for _, c := range n.children {
			rec(c, depth+1, g.edgeLabel(id, c))
		}
	}
	if g.Contains(g.root) {
		rec(g.root, 0, "")
	}
	return sb.String()
}
