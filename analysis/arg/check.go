package arg

import (
	uf "github.com/spakin/disjoint"

	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/utils/graph"
)

// ChildGraph views the live nodes as a graph along child links.
func (g *ARG) ChildGraph() graph.Graph[ID] {
	return graph.OfHashable(func(id ID) []ID {
		if n, ok := g.nodes[id]; ok {
			return n.children
		}
		return nil
	})
}

// Check verifies the structural invariants of the graph:
//   - parent and child links are symmetric and only mention live nodes,
//   - every live node is connected to the root,
//   - child links are acyclic,
//   - covering links are symmetric, and covering nodes are not covered.
func (g *ARG) Check() error {
	if len(g.nodes) == 0 {
		return nil
	}
	root, ok := g.nodes[g.root]
	if !ok {
		return cpa.InvariantViolation("graph has nodes but no root")
	}
	if len(root.parents) > 0 {
		return cpa.InvariantViolation("root %d has parents", g.root)
	}

	elements := make(map[ID]*uf.Element, len(g.nodes))
	for id := range g.nodes {
		elements[id] = uf.NewElement()
	}

	for id, n := range g.nodes {
		if id != g.root && len(n.parents) == 0 {
			return cpa.InvariantViolation("node %d has no parent", id)
		}
		for _, p := range n.parents {
			pn, ok := g.nodes[p]
			if !ok {
				return cpa.InvariantViolation("node %d has removed parent %d", id, p)
			}
			if !contains(pn.children, id) {
				return cpa.InvariantViolation("parent %d does not list child %d", p, id)
			}
			if _, ok := n.inEdges[p]; !ok {
				return cpa.InvariantViolation("no edge from %d to %d", p, id)
			}
			uf.Union(elements[id], elements[p])
		}
		for _, c := range n.children {
			cn, ok := g.nodes[c]
			if !ok {
				return cpa.InvariantViolation("node %d has removed child %d", id, c)
			}
			if !contains(cn.parents, id) {
				return cpa.InvariantViolation("child %d does not list parent %d", c, id)
			}
		}
		if n.coveredBy != None {
			cn, ok := g.nodes[n.coveredBy]
			switch {
			case !ok:
				return cpa.InvariantViolation("node %d is covered by removed node %d", id, n.coveredBy)
			case cn.IsCovered():
				return cpa.InvariantViolation("node %d is covered by covered node %d", id, n.coveredBy)
			case !contains(cn.covering, id):
				return cpa.InvariantViolation("node %d does not list covered node %d", n.coveredBy, id)
			}
		}
		for _, c := range n.covering {
			if cn, ok := g.nodes[c]; !ok || cn.coveredBy != id {
				return cpa.InvariantViolation("node %d lists %d as covered", id, c)
			}
		}
	}

	rootSet := elements[g.root].Find()
	for id, el := range elements {
		if el.Find() != rootSet {
			return cpa.InvariantViolation("node %d is disconnected from the root", id)
		}
	}

	if g.ChildGraph().SCC([]ID{g.root}).HasCycle() {
		return cpa.InvariantViolation("child links form a cycle")
	}
	return nil
}

func contains(ids []ID, id ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
