package graph

import (
	"fmt"

	"github.com/cs-au-dk/reach/utils/dot"
)

type VisualizationConfig[T any] struct {
	// Provides the ID and attributes for dot nodes.
	// If not provided, the ID is the stringified node.
	NodeAttrs func(node T) (string, dot.DotAttrs)
	// Provides attributes for the edge between two nodes.
	EdgeAttrs func(from, to T) dot.DotAttrs
	// If provided, will create clusters for nodes with the same key.
	// The returned key must be safe to use in a Go map. Nodes with a nil key
	// stay outside clusters.
	ClusterKey func(node T) any
	// Provides the ID and attributes for dot clusters.
	ClusterAttrs func(key any) (string, dot.DotAttrs)
	// Graph level options (rankdir, nodesep, minlen).
	Options map[string]string
}

// ToDotGraph renders the subgraph induced by nodes. Edges to nodes outside
// the list are omitted.
func (G Graph[T]) ToDotGraph(nodes []T, cfg *VisualizationConfig[T]) *dot.DotGraph {
	if cfg == nil {
		cfg = &VisualizationConfig[T]{}
	}

	graphOpts := map[string]string{
		"minlen":  "1",
		"nodesep": "0.3",
		"rankdir": "TB",
	}
	for k, v := range cfg.Options {
		graphOpts[k] = v
	}

	dg := &dot.DotGraph{
		Options: graphOpts,
	}

	keyToCluster := map[any]*dot.DotCluster{}
	getCluster := func(key any) *dot.DotCluster {
		if cluster, found := keyToCluster[key]; found {
			return cluster
		}

		var id string
		var attrs dot.DotAttrs
		if cfg.ClusterAttrs != nil {
			id, attrs = cfg.ClusterAttrs(key)
		} else {
			id = fmt.Sprint(key)
		}

		cluster := dot.NewDotCluster(id)
		if attrs != nil {
			cluster.Attrs = attrs
		}
		dg.Clusters = append(dg.Clusters, cluster)

		keyToCluster[key] = cluster
		return cluster
	}

	// Add nodes to graph
	nodeToDotNode := G.mapFactory()
	for _, node := range nodes {
		dNode := &dot.DotNode{}

		if cfg.NodeAttrs != nil {
			dNode.ID, dNode.Attrs = cfg.NodeAttrs(node)
		} else {
			dNode.ID = fmt.Sprint(node)
		}

		nodeToDotNode.Set(node, dNode)

		var key any
		if cfg.ClusterKey != nil {
			key = cfg.ClusterKey(node)
		}
		if key != nil {
			cl := getCluster(key)
			cl.Nodes = append(cl.Nodes, dNode)
		} else {
			dg.Nodes = append(dg.Nodes, dNode)
		}
	}

	// Add edges to graph
	for _, node := range nodes {
		a, _ := nodeToDotNode.Get(node)

		for _, edge := range G.Edges(node) {
			if b, found := nodeToDotNode.Get(edge); found {
				e := &dot.DotEdge{
					From: a.(*dot.DotNode),
					To:   b.(*dot.DotNode),
				}
				if cfg.EdgeAttrs != nil {
					e.Attrs = cfg.EdgeAttrs(node, edge)
				}
				dg.Edges = append(dg.Edges, e)
			}
		}
	}

	return dg
}
