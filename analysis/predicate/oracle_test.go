package predicate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/refinement"
	"github.com/cs-au-dk/reach/testutil"
)

// straight turns a sequence of edges into a path through fresh states.
func straight(edges ...*cfa.Edge) arg.Path {
	p := arg.Path{Edges: edges}
	for i := 0; i <= len(edges); i++ {
		p.States = append(p.States, arg.ID(i+1))
	}
	return p
}

func itp(e cfa.Expr) refinement.Interpolant {
	return refinement.Interpolant{Formula: e}
}

func TestOracleInfeasiblePath(t *testing.T) {
	b := cfa.NewBuilder("main")
	n0, n1, n2 := b.Node(""), b.Node(""), b.Node("")
	path := straight(
		b.Assign(n0, n1, "x", cfa.True),
		b.Assume(n1, n2, x, false),
		b.Fail(n2, testutil.ErrorProperty),
	)

	v, err := NewOracle(nil).CheckPath(context.Background(), path)
	require.NoError(t, err)
	require.False(t, v.Feasible)
	require.Equal(t, []refinement.Interpolant{
		refinement.True, itp(x), refinement.False, refinement.False,
	}, v.Interpolants)
}

func TestOracleFollowsVersions(t *testing.T) {
	b := cfa.NewBuilder("main")
	n := make([]*cfa.Node, 5)
	for i := range n {
		n[i] = b.Node("")
	}
	// x := true; y := x; x := false; [!y]
	path := straight(
		b.Assign(n[0], n[1], "x", cfa.True),
		b.Assign(n[1], n[2], "y", x),
		b.Assign(n[2], n[3], "x", cfa.False),
		b.Assume(n[3], n[4], y, false),
		b.Fail(n[4], testutil.ErrorProperty),
	)

	v, err := NewOracle(nil).CheckPath(context.Background(), path)
	require.NoError(t, err)
	require.False(t, v.Feasible)
	require.Equal(t, []refinement.Interpolant{
		refinement.True, itp(x), itp(y), itp(y), refinement.False, refinement.False,
	}, v.Interpolants)
}

func TestOracleRelationalInterpolant(t *testing.T) {
	a, bv := cfa.Var{Name: "a"}, cfa.Var{Name: "b"}
	b := cfa.NewBuilder("main")
	n := make([]*cfa.Node, 6)
	for i := range n {
		n[i] = b.Node("")
	}
	// a := *; b := *; x := a; [!b]; [x && !a]
	path := straight(
		b.Havoc(n[0], n[1], "a", true),
		b.Havoc(n[1], n[2], "b", true),
		b.Assign(n[2], n[3], "x", a),
		b.Assume(n[3], n[4], bv, false),
		b.Assume(n[4], n[5], cfa.And{X: x, Y: cfa.Not{X: a}}, true),
		b.Fail(n[5], testutil.ErrorProperty),
	)

	v, err := NewOracle(nil).CheckPath(context.Background(), path)
	require.NoError(t, err)
	require.False(t, v.Feasible)
	rel := itp(cfa.Iff{X: a, Y: x})
	require.Equal(t, []refinement.Interpolant{
		refinement.True, refinement.True, refinement.True, rel, rel, refinement.False, refinement.False,
	}, v.Interpolants)
	require.Equal(t, []Predicate{{cfa.Iff{X: a, Y: x}}}, FromInterpolant(rel))
}

func TestProjectionMinimises(t *testing.T) {
	names := []string{"a", "b", "c"}
	// a && (b || !b) with c free, and an equivalence.
	require.Equal(t, cfa.Expr(cfa.Var{Name: "a"}), dnf(names, minimise([]cube{
		{high, high, high}, {high, high, low}, {high, low, high}, {high, low, low},
	})))
	require.Equal(t, cfa.Negate(cfa.Iff{X: cfa.Var{Name: "a"}, Y: cfa.Var{Name: "c"}}), dnf(names, minimise([]cube{
		{high, high, low}, {high, low, low}, {low, high, high}, {low, low, high},
	})))
	require.Equal(t, cfa.True, dnf(nil, []cube{{}}))
	require.Equal(t, cfa.False, dnf(names, nil))
}

func TestOracleFeasiblePath(t *testing.T) {
	tests := []struct {
		name    string
		exact   bool
		precise bool
		inputs  int
	}{
		{"exact input", true, true, 1},
		{"uninterpreted value", false, false, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := cfa.NewBuilder("main")
			n0, n1, n2 := b.Node(""), b.Node(""), b.Node("")
			havoc := b.Havoc(n0, n1, "x", test.exact)
			path := straight(havoc, b.Assume(n1, n2, x, true), b.Fail(n2, testutil.ErrorProperty))

			v, err := NewOracle(nil).CheckPath(context.Background(), path)
			require.NoError(t, err)
			require.True(t, v.Feasible)
			require.Equal(t, test.precise, v.Precise)
			require.Len(t, v.Inputs, test.inputs)
			if test.inputs > 0 {
				require.Equal(t, refinement.Input{Position: 0, Edge: havoc, Var: "x", Value: true}, v.Inputs[0])
			}
		})
	}
}

func TestOracleCancelled(t *testing.T) {
	b := cfa.NewBuilder("main")
	n0, n1 := b.Node(""), b.Node("")
	path := straight(b.Assume(n0, n1, x, true))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOracle(nil).CheckPath(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
}
