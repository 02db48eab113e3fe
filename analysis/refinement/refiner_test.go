package refinement

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/testutil"
)

type oracle struct {
	verdict Verdict
	err     error
	calls   int
}

func (o *oracle) CheckPath(context.Context, arg.Path) (Verdict, error) {
	o.calls++
	return o.verdict, o.err
}

type strategy struct {
	repeated []bool
	itps     [][]Interpolant
}

func (s *strategy) PerformRefinement(_ context.Context, rs *reached.ARGReachedSet, path arg.Path, itps []Interpolant, repeated bool) error {
	s.repeated = append(s.repeated, repeated)
	s.itps = append(s.itps, itps)
	_, _, err := rs.RemoveTarget(path.Last())
	return err
}

// linear explores testutil.Linear up to its error location.
func linear(t *testing.T) (*reached.ARGReachedSet, *cfa.CFA) {
	c := testutil.Linear()
	rs, err := reached.NewARGReachedSet(reached.Options{}, nil)
	require.NoError(t, err)
	prec := &testutil.Precision{}
	root, err := rs.Initialize(&testutil.State{Node: c.Nodes[0]}, prec)
	require.NoError(t, err)
	mid, err := rs.AddChild(root, c.Edges[0], &testutil.State{Node: c.Nodes[1]}, prec)
	require.NoError(t, err)
	_, err = rs.AddChild(mid, c.Edges[1], &testutil.State{Node: c.Nodes[2]}, prec)
	require.NoError(t, err)
	return rs, c
}

func infeasible() Verdict {
	return Verdict{Interpolants: []Interpolant{True, {Formula: cfa.Iff{X: cfa.Var{Name: "x"}, Y: cfa.Var{Name: "y"}}}, False}}
}

func TestFeasiblePathIsCounterexample(t *testing.T) {
	rs, c := linear(t)
	o := &oracle{verdict: Verdict{Feasible: true, Precise: true}}
	r := NewRefiner(o, &strategy{}, nil, nil)

	cex, err := r.PerformRefinement(context.Background(), rs)
	require.NoError(t, err)
	require.NotNil(t, cex)
	require.Equal(t, arg.ID(3), cex.Target)
	require.Equal(t, []arg.ID{1, 2, 3}, cex.Path.States)
	require.Equal(t, []*cfa.Edge{c.Edges[0], c.Edges[1]}, cex.Path.Edges)
	require.True(t, cex.Precise)
	require.True(t, rs.Contains(3))
}

func TestRepeatedCounterexampleIsDetected(t *testing.T) {
	rs, c := linear(t)
	s := &strategy{}
	r := NewRefiner(&oracle{verdict: infeasible()}, s, nil, nil)

	cex, err := r.PerformRefinement(context.Background(), rs)
	require.NoError(t, err)
	require.Nil(t, cex)
	require.False(t, rs.Contains(3))

	_, err = rs.AddChild(2, c.Edges[1], &testutil.State{Node: c.Nodes[2]}, &testutil.Precision{})
	require.NoError(t, err)
	_, err = r.PerformRefinement(context.Background(), rs)
	require.NoError(t, err)

	require.Equal(t, []bool{false, true}, s.repeated)
	require.Len(t, s.itps[0], 3)
	require.True(t, s.itps[0][0].IsTrue())
	require.Equal(t, "x == y", s.itps[0][1].String())
	require.True(t, s.itps[0][2].IsFalse())
	require.False(t, s.itps[0][1].IsFalse())
}

func TestInterpolantMismatch(t *testing.T) {
	rs, _ := linear(t)
	r := NewRefiner(&oracle{verdict: Verdict{Interpolants: []Interpolant{True, False}}}, &strategy{}, nil, nil)

	_, err := r.PerformRefinement(context.Background(), rs)
	var failed *FailedError
	require.True(t, errors.As(err, &failed))
	require.Equal(t, InterpolationFailed, failed.Reason)
	require.True(t, IsFailure(err))
	require.NoError(t, rs.Recover())
}

func TestOracleErrors(t *testing.T) {
	rs, _ := linear(t)

	r := NewRefiner(&oracle{err: errors.New("solver crashed")}, &strategy{}, nil, nil)
	_, err := r.PerformRefinement(context.Background(), rs)
	require.True(t, errors.Is(err, ErrCounterexampleAnalysisFailed))
	require.True(t, IsFailure(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r = NewRefiner(&oracle{verdict: infeasible()}, &strategy{}, nil, nil)
	_, err = r.PerformRefinement(ctx, rs)
	require.True(t, errors.Is(err, context.Canceled))
	require.False(t, IsFailure(err))
	require.True(t, rs.Contains(3))
}

func TestRefinementWithoutTarget(t *testing.T) {
	rs, _ := linear(t)
	_, _, err := rs.RemoveTarget(3)
	require.NoError(t, err)

	o := &oracle{}
	_, err = NewRefiner(o, &strategy{}, nil, nil).PerformRefinement(context.Background(), rs)
	require.True(t, errors.Is(err, cpa.ErrIllegalState))
	require.Zero(t, o.calls)
}
