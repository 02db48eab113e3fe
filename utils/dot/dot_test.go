package dot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteDot(t *testing.T) {
	a := &DotNode{ID: "a", Attrs: DotAttrs{"label": "A", "fillcolor": "tomato"}}
	b := &DotNode{ID: "b"}
	c := NewDotCluster("N1")
	c.Attrs["label"] = "N1"
	c.Nodes = append(c.Nodes, b)

	g := &DotGraph{
		Name:     "ARG",
		Nodes:    []*DotNode{a},
		Clusters: []*DotCluster{c},
		Edges:    []*DotEdge{{From: a, To: b, Attrs: DotAttrs{"label": "x := true"}}},
	}
	data, err := g.Bytes()
	require.NoError(t, err)
	out := string(data)

	require.True(t, strings.HasPrefix(out, "digraph ARG {"), out)
	require.Contains(t, out, `subgraph "cluster_N1" {`)
	require.Contains(t, out, `"a" [ fillcolor="tomato"; label="A"; ]`)
	require.Contains(t, out, `"a" -> "b" [ label="x := true"; ]`)
	require.Contains(t, out, `rankdir="LR"`)

	require.Equal(t, 2, g.CountNodes())
	require.Same(t, b, g.Node("b"))
	require.Nil(t, g.Node("c"))
}
