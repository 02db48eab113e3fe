package predicate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/refinement"
)

func nodes(fn string, n int) []*cfa.Node {
	b := cfa.NewBuilder(fn)
	res := make([]*cfa.Node, n)
	for i := range res {
		res[i] = b.Node("")
	}
	return res
}

func TestPrecisionCategories(t *testing.T) {
	f := nodes("f", 2)
	g := nodes("g", 1)

	p := Empty().
		AddGlobalPredicates(Atom("glob")).
		AddFunctionPredicates("f", Atom("a")).
		AddLocalPredicates(f[0], Atom("b")).
		AddLocationInstancePredicates(LocationInstance{f[0], 1}, Atom("c"), FalsePredicate)

	tests := []struct {
		node     *cfa.Node
		instance int
		want     []Predicate
	}{
		{f[0], 0, []Predicate{Atom("a"), Atom("b"), Atom("glob")}},
		{f[0], 1, []Predicate{FalsePredicate, Atom("a"), Atom("b"), Atom("c"), Atom("glob")}},
		{f[1], 0, []Predicate{Atom("a"), Atom("glob")}},
		{g[0], 0, []Predicate{Atom("glob")}},
	}
	for _, test := range tests {
		require.Equal(t, test.want, p.Predicates(test.node, test.instance), "%v#%d", test.node, test.instance)
		for _, pred := range test.want {
			require.True(t, p.Contains(LocationInstance{test.node, test.instance}, pred))
		}
	}

	// glob, a, b, c and false.
	require.Equal(t, 5, p.Size())
}

func TestPrecisionIsPersistent(t *testing.T) {
	n := nodes("f", 1)[0]
	p1 := Empty()
	p2 := p1.AddLocalPredicates(n, Atom("x"))
	p3 := p2.AddLocalPredicates(n, Atom("y"))

	require.Zero(t, p1.Size())
	require.Equal(t, []Predicate{Atom("x")}, p2.Predicates(n, 0))
	require.Equal(t, []Predicate{Atom("x"), Atom("y")}, p3.Predicates(n, 0))
}

func TestPrecisionDifference(t *testing.T) {
	ns := nodes("f", 2)
	old := Empty().AddLocalPredicates(ns[0], Atom("x")).AddGlobalPredicates(Atom("g"))
	grown := old.AddLocalPredicates(ns[1], Atom("y")).AddFunctionPredicates("f", Atom("z"))

	require.Zero(t, old.DifferenceTo(grown))
	require.Equal(t, 2, grown.DifferenceTo(old))

	// The same predicate in another category does not count.
	moved := Empty().AddGlobalPredicates(Atom("x"), Atom("g"))
	require.Equal(t, 1, old.DifferenceTo(moved))

	union := UnionOf(old, moved, nil)
	require.Zero(t, old.DifferenceTo(union))
	require.Zero(t, moved.DifferenceTo(union))
	require.Same(t, old, old.Join(old))
}

func TestPrecisionEntries(t *testing.T) {
	n := nodes("f", 1)[0]
	p := Empty().
		AddLocationInstancePredicates(LocationInstance{n, 0}, Atom("i")).
		AddLocalPredicates(n, Atom("l")).
		AddGlobalPredicates(Atom("g"))

	require.Equal(t, []Entry{
		{Scope: "global", Predicates: []string{"g"}},
		{Scope: "location", Key: "f:N0", Predicates: []string{"l"}},
		{Scope: "instance", Key: "f:N0#0", Predicates: []string{"i"}},
	}, p.Entries())
	require.Equal(t, "{global: g; location f:N0: l; instance f:N0#0: i}", p.String())
}

func TestFromInterpolant(t *testing.T) {
	x, y, z := cfa.Var{Name: "x"}, cfa.Var{Name: "y"}, cfa.Var{Name: "z"}
	itp := refinement.Interpolant{Formula: cfa.Conj(y, cfa.Not{X: cfa.Iff{X: x, Y: z}}, cfa.Not{X: x}, y)}
	require.Equal(t, []Predicate{Atom("x"), {cfa.Iff{X: x, Y: z}}, Atom("y")}, FromInterpolant(itp))
	require.Equal(t, []Predicate{FalsePredicate}, FromInterpolant(refinement.False))
	require.Empty(t, FromInterpolant(refinement.True))
	require.Empty(t, FromInterpolant(refinement.Interpolant{Formula: cfa.True}))

	require.True(t, Atom("main::t").Scoped())
	require.False(t, Atom("g").Scoped())
	require.False(t, FalsePredicate.Scoped())
	require.True(t, Predicate{cfa.Iff{X: x, Y: z}}.Equal(Predicate{cfa.Iff{X: x, Y: z}}))
	require.False(t, Atom("x").Equal(Predicate{cfa.Not{X: x}}))
}
