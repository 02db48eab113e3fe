package graph

// A DAG decomposition of a graph based on strongly connected components.
// The nodes in component i are guaranteed to only have edges to nodes in
// components with index j <= i.
type SCCDecomposition[T any] struct {
	Components [][]T
	comp       mapper[T]
	Original   Graph[T]
}

// An alias for component type (in case representation changes)
type SCC = int

// Returns the index of the component the node is a part of, or -1 if the node
// was not reachable from the start nodes of the decomposition.
func (scc SCCDecomposition[T]) ComponentOf(node T) SCC {
	if comp, hasComp := scc.comp.Get(node); hasComp {
		return comp.(int)
	}

	return -1
}

// Compute the strongly connected components of the subgraph reachable from the
// provided start nodes.
func (G Graph[T]) SCC(startNodes []T) SCCDecomposition[T] {
	// Source:
	// https://github.com/kth-competitive-programming/kactl/blob/main/content/graph/SCC.h

	val, comp := G.mapFactory(), G.mapFactory()
	time := 0
	var z, cont []T
	var components [][]T

	var rec func(T)
	rec = func(node T) {
		time++
		low := time
		val.Set(node, low)
		stackH := len(z)
		z = append(z, node)

		for _, e := range G.Edges(node) {
			if _, hasComp := comp.Get(e); !hasComp {
				if _, visited := val.Get(e); !visited {
					rec(e)
				}

				eLow, _ := val.Get(e)
				if eLow.(int) < low {
					low = eLow.(int)
				}
			}
		}

		if oldLow, _ := val.Get(node); low == oldLow.(int) {
			for len(z) > stackH {
				x := z[len(z)-1]
				z = z[:len(z)-1]
				comp.Set(x, len(components))
				cont = append(cont, x)
			}

			components = append(components, cont)
			cont = nil
		}

		val.Set(node, low)
	}

	for _, node := range startNodes {
		if _, hasComp := comp.Get(node); !hasComp {
			rec(node)
		}
	}

	return SCCDecomposition[T]{
		Components: components,
		comp:       comp,
		Original:   G,
	}
}

// TopologicalRank maps node to the position of its component in a
// topological order of the condensation: start nodes get the smallest ranks.
func (scc SCCDecomposition[T]) TopologicalRank(node T) int {
	if c := scc.ComponentOf(node); c >= 0 {
		return len(scc.Components) - 1 - c
	}
	return len(scc.Components)
}

// Cyclic reports whether the component contains a cycle, i.e. it has more
// than one node or its only node has a self-loop.
func (scc SCCDecomposition[T]) Cyclic(c SCC) bool {
	nodes := scc.Components[c]
	if len(nodes) > 1 {
		return true
	}
	for _, e := range scc.Original.Edges(nodes[0]) {
		if scc.ComponentOf(e) == c {
			return true
		}
	}
	return false
}

// HasCycle reports whether any component is cyclic.
func (scc SCCDecomposition[T]) HasCycle() bool {
	for c := range scc.Components {
		if scc.Cyclic(c) {
			return true
		}
	}
	return false
}
