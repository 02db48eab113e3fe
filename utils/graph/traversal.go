package graph

import W "github.com/cs-au-dk/reach/utils/worklist"

// Reachable lists the nodes reachable from starts in BFS order.
func (G Graph[T]) Reachable(starts ...T) (res []T) {
	visited := G.mapFactory()
	for _, start := range starts {
		visited.Set(start, true)
	}

	W.StartV(starts, func(node T, add func(T)) {
		res = append(res, node)
		for _, next := range G.Edges(node) {
			if _, found := visited.Get(next); !found {
				visited.Set(next, true)
				add(next)
			}
		}
	})
	return
}
