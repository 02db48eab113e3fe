package predicate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
)

var x, y = cfa.Var{Name: "x"}, cfa.Var{Name: "y"}

func successors(t *testing.T, s *State, p *Precision, e *cfa.Edge) []*State {
	t.Helper()
	succs, err := transfer{}.SuccessorsForEdge(context.Background(), s, p, e)
	require.NoError(t, err)
	res := make([]*State, len(succs))
	for i, succ := range succs {
		res[i] = succ.(*State)
	}
	return res
}

func TestTransferTracksPrecision(t *testing.T) {
	b := cfa.NewBuilder("main")
	n0, n1, n2, n3 := b.Node(""), b.Node(""), b.Node(""), b.Node("")
	assign := b.Assign(n0, n1, "x", cfa.True)
	copyY := b.Assign(n1, n2, "y", x)
	check := b.Assume(n2, n3, y, false)

	s1 := successors(t, initialState(n0), Empty(), assign)[0]
	require.Equal(t, cfa.Expr(x), s1.Formula())
	require.Equal(t, LocationInstance{n1, 0}, s1.LocationInstance())

	// Without x in the precision at N1 the copy learns nothing about y.
	s2 := successors(t, s1, Empty(), copyY)[0]
	require.False(t, s2.Entails(y))
	require.Len(t, successors(t, s2, Empty(), check), 1)

	prec := Empty().AddLocalPredicates(n1, Atom("x")).AddLocalPredicates(n2, Atom("y"))
	s2 = successors(t, s1, prec, copyY)[0]
	require.True(t, s2.Entails(y))
	require.Equal(t, cfa.Expr(y), s2.Abstract(prec))
	require.Empty(t, successors(t, s2, prec, check))
}

func TestTransferDecidesConditions(t *testing.T) {
	b := cfa.NewBuilder("main")
	n0, n1 := b.Node(""), b.Node("")
	contradiction := b.Assume(n0, n1, cfa.And{X: x, Y: cfa.Not{X: x}}, true)
	tautology := b.Assign(n0, n1, "y", cfa.Or{X: x, Y: cfa.Not{X: x}})
	both := b.Assume(n0, n1, cfa.And{X: x, Y: cfa.Not{X: y}}, true)
	havoc := b.Havoc(n0, n1, "x", true)

	s0 := initialState(n0)
	require.Empty(t, successors(t, s0, nil, contradiction))

	s1 := successors(t, s0, nil, tautology)[0]
	require.True(t, s1.Entails(y))

	s1 = successors(t, s0, nil, both)[0]
	require.True(t, s1.Entails(x))
	require.True(t, s1.Entails(cfa.Not{X: y}))

	s0.formula = x
	prec := Empty().AddGlobalPredicates(Atom("x"))
	s1 = successors(t, s0, prec, havoc)[0]
	require.Equal(t, cfa.True, s1.Formula())
	require.False(t, s1.Entails(x))
}

func TestTransferKeepsRelations(t *testing.T) {
	a := cfa.Var{Name: "a"}
	b := cfa.NewBuilder("main")
	n0, n1, n2, n3 := b.Node(""), b.Node(""), b.Node(""), b.Node("")
	copyX := b.Assign(n0, n1, "x", a)
	check := b.Assume(n1, n2, x, true)
	fail := b.Assume(n2, n3, a, false)

	rel := Predicate{cfa.Iff{X: a, Y: x}}
	prec := Empty().AddLocalPredicates(n1, rel).AddLocalPredicates(n2, Atom("a"))

	s1 := successors(t, initialState(n0), prec, copyX)[0]
	require.Equal(t, rel.Formula, s1.Abstract(prec))
	s2 := successors(t, s1, prec, check)[0]
	require.Equal(t, cfa.Expr(a), s2.Abstract(prec))
	require.Empty(t, successors(t, s2, prec, fail))

	// Tracking a and x apart loses the relation.
	apart := Empty().AddLocalPredicates(n1, Atom("a"), Atom("x")).AddLocalPredicates(n2, Atom("a"))
	s1 = successors(t, initialState(n0), apart, copyX)[0]
	require.Equal(t, cfa.True, s1.Abstract(apart))
	s2 = successors(t, s1, apart, check)[0]
	require.Len(t, successors(t, s2, apart, fail), 1)
}

func TestTransferCountsVisits(t *testing.T) {
	b := cfa.NewBuilder("main")
	head, body := b.Node("head"), b.Node("body")
	enter := b.Blank(head, body, "")
	back := b.Blank(body, head, "")

	s := initialState(head)
	require.Equal(t, 0, s.Instance())
	for i := 1; i <= 3; i++ {
		s = successors(t, successors(t, s, nil, enter)[0], nil, back)[0]
		require.Equal(t, LocationInstance{head, i}, s.LocationInstance())
	}
}

func TestDomain(t *testing.T) {
	b := cfa.NewBuilder("main")
	n0, n1 := b.Node(""), b.Node("")

	s := func(n *cfa.Node, e cfa.Expr) *State {
		st := initialState(n)
		st.formula = e
		return st
	}
	top := s(n0, cfa.True)
	xy := s(n0, cfa.And{X: x, Y: cfa.Not{X: y}})
	xny := s(n0, cfa.And{X: x, Y: y})

	d := domain{}
	le := func(a, b *State) bool {
		ok, err := d.LessOrEqual(a, b)
		require.NoError(t, err)
		return ok
	}
	require.True(t, le(xy, top))
	require.False(t, le(top, xy))
	require.False(t, le(xy, xny))
	require.False(t, le(top, s(n1, cfa.True)))
	// Entailment is semantic.
	require.True(t, le(s(n0, cfa.Iff{X: x, Y: cfa.True}), s(n0, cfa.Or{X: x, Y: y})))

	j, err := d.Join(xy, xny)
	require.NoError(t, err)
	joined := j.(*State)
	require.True(t, joined.Entails(x))
	require.False(t, joined.Entails(y))
	require.True(t, le(xy, joined))
	require.True(t, le(xny, joined))

	j, err = d.Join(xy, top)
	require.NoError(t, err)
	require.Same(t, top, j)

	_, err = d.Join(top, s(n1, cfa.True))
	require.ErrorIs(t, err, cpa.ErrInvariantViolation)
}

func TestMergeOperator(t *testing.T) {
	require.IsType(t, cpa.MergeSep{}, CPA{}.Merge())
	require.IsType(t, cpa.MergeJoin{}, CPA{JoinMerge: true}.Merge())

	initial := Empty().AddGlobalPredicates(Atom("x"))
	require.Same(t, initial, CPA{Initial: initial}.InitialPrecision(nil))
	require.Zero(t, CPA{}.InitialPrecision(nil).(*Precision).Size())
}
