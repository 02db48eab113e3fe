package algorithm

import (
	"context"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/analysis/location"
	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/analysis/refinement"
	"github.com/cs-au-dk/reach/analysis/stats"
	"github.com/cs-au-dk/reach/analysis/testtarget"
	"github.com/cs-au-dk/reach/testutil"
)

type oracle struct {
	feasible bool
	inputs   []refinement.Input
	calls    int
}

func (o *oracle) CheckPath(_ context.Context, path arg.Path) (refinement.Verdict, error) {
	o.calls++
	if o.feasible {
		return refinement.Verdict{Feasible: true, Precise: true, Inputs: o.inputs}, nil
	}
	itps := make([]refinement.Interpolant, len(path.States))
	itps[len(itps)-1] = refinement.False
	return refinement.Verdict{Interpolants: itps}, nil
}

// blocker makes the analysis discard the target location and restarts the
// exploration from the root.
type blocker struct {
	cpa   *testutil.CPA
	block bool
	err   error
}

func (b *blocker) PerformRefinement(_ context.Context, rs *reached.ARGReachedSet, path arg.Path, _ []refinement.Interpolant, _ bool) error {
	if b.err != nil {
		return b.err
	}
	if b.block {
		b.cpa.BreakAt[rs.State(path.Last()).(*testutil.State).Node.ID] = true
	}
	return rs.RemoveSubtree(rs.ARG.Root(), nil)
}

func cegar(t *testing.T, o refinement.Oracle, s refinement.Strategy, a *testutil.CPA, max int) (*CEGARAlgorithm, *reached.ARGReachedSet, *stats.Stats) {
	rs, err := reached.NewARGReachedSet(reached.Options{}, nil)
	require.NoError(t, err)
	_, err = Initialize(a, rs, testutil.Linear().Entry)
	require.NoError(t, err)
	st := stats.New("test")
	inner := NewCPAAlgorithm(a, DefaultOptions(), st, nil)
	return NewCEGARAlgorithm(inner, refinement.NewRefiner(o, s, st, nil), max, st, nil), rs, st
}

func TestCEGARProvesAfterRefinement(t *testing.T) {
	a := &testutil.CPA{BreakAt: map[int]bool{}}
	alg, rs, st := cegar(t, &oracle{}, &blocker{cpa: a, block: true}, a, 0)

	status, err := alg.Run(context.Background(), rs)
	require.NoError(t, err)
	require.Equal(t, 1, alg.Refinements())
	require.Nil(t, alg.Counterexample())
	require.Equal(t, 1.0, promtest.ToFloat64(st.Refinements))
	require.NoError(t, rs.Recover())

	res := Evaluate(rs, status, alg.Counterexample(), err)
	require.Equal(t, True, res.Outcome)
}

func TestCEGARReportsFeasibleCounterexample(t *testing.T) {
	a := &testutil.CPA{}
	alg, rs, _ := cegar(t, &oracle{feasible: true}, &blocker{}, a, 0)

	status, err := alg.Run(context.Background(), rs)
	require.NoError(t, err)
	cex := alg.Counterexample()
	require.NotNil(t, cex)
	require.Equal(t, 2, cex.Path.Len())

	res := Evaluate(rs, status, cex, err)
	require.Equal(t, False, res.Outcome)
	require.Same(t, cex, res.Counterexample)
}

func TestCEGARRefinementLimit(t *testing.T) {
	a := &testutil.CPA{}
	alg, rs, _ := cegar(t, &oracle{}, &blocker{}, a, 2)

	status, err := alg.Run(context.Background(), rs)
	require.NoError(t, err)
	require.Equal(t, 2, alg.Refinements())

	res := Evaluate(rs, status, nil, err)
	require.Equal(t, Unknown, res.Outcome)
	require.Equal(t, "exploration incomplete", res.Reason)
}

func TestCEGARRefinementFailure(t *testing.T) {
	a := &testutil.CPA{}
	failure := &refinement.FailedError{Reason: refinement.RepeatedCounterexample}
	alg, rs, st := cegar(t, &oracle{}, &blocker{err: failure}, a, 0)

	status, err := alg.Run(context.Background(), rs)
	require.ErrorIs(t, err, failure)
	require.Equal(t, 1.0, promtest.ToFloat64(st.RefinementFailures))
	require.NoError(t, rs.Recover())

	res := Evaluate(rs, status, nil, err)
	require.Equal(t, Unknown, res.Outcome)
	require.Contains(t, res.Reason, "repeated counterexample")
}

type recorder struct {
	goals []*cfa.Edge
}

func (r *recorder) WriteTestCase(goal *cfa.Edge, _ *refinement.Counterexample) error {
	r.goals = append(r.goals, goal)
	return nil
}

func branch(t *testing.T) (*cfa.CFA, *cfa.Edge, *cfa.Edge) {
	b := cfa.NewBuilder("branch")
	entry, then, els, exit := b.Node("entry"), b.Node("then"), b.Node("else"), b.Node("exit")
	et, ee := b.Branch(entry, cfa.Var{Name: "c"}, then, els)
	b.Blank(then, exit, "")
	b.Blank(els, exit, "")
	c, err := b.Build(entry, exit)
	require.NoError(t, err)
	return c, et, ee
}

func testgen(t *testing.T, c *cfa.CFA, checker refinement.Oracle) (*TestGenAlgorithm, *reached.ARGReachedSet, *testtarget.Goals, *recorder) {
	goals, err := testtarget.Select(c, testtarget.Branches)
	require.NoError(t, err)
	a := cpa.NewComposite(location.CPA{IgnoreErrors: true}, &testtarget.CPA{Goals: goals})

	rs, err := reached.NewARGReachedSet(reached.Options{}, nil)
	require.NoError(t, err)
	_, err = Initialize(a, rs, c.Entry)
	require.NoError(t, err)

	w := &recorder{}
	inner := NewCPAAlgorithm(a, DefaultOptions(), nil, nil)
	return NewTestGenAlgorithm(inner, goals, checker, w, nil, nil), rs, goals, w
}

func TestTestGenCoversBranches(t *testing.T) {
	c, then, els := branch(t)
	alg, rs, goals, w := testgen(t, c, &oracle{feasible: true})

	status, err := alg.Run(context.Background(), rs)
	require.NoError(t, err)
	require.Equal(t, NoPropertyChecked, status)
	require.Equal(t, []*cfa.Edge{then, els}, w.goals)
	require.Zero(t, goals.Len())
	require.Empty(t, rs.Targets())
	require.False(t, rs.HasWaitingState())
	require.NoError(t, rs.Recover())
}

func TestTestGenInfeasibleGoals(t *testing.T) {
	c, _, _ := branch(t)
	checker := &oracle{}
	alg, rs, goals, w := testgen(t, c, checker)

	status, err := alg.Run(context.Background(), rs)
	require.NoError(t, err)
	require.False(t, status.Precise)
	require.Empty(t, w.goals)
	require.Equal(t, 2, checker.calls)
	// Neither goal was reached by a feasible path.
	require.Equal(t, 2, goals.Len())
	require.Empty(t, rs.Targets())
	require.False(t, rs.HasWaitingState())
	require.NoError(t, rs.Recover())
}

// imprecise reports every run of the wrapped algorithm as imprecise, as a CPA
// algorithm does after skipping failed transfers.
type imprecise struct{ Algorithm }

func (a imprecise) Run(ctx context.Context, rs *reached.ARGReachedSet) (Status, error) {
	st, err := a.Algorithm.Run(ctx, rs)
	return st.WithPrecise(false), err
}

func TestTestGenKeepsInnerImprecision(t *testing.T) {
	c, _, _ := branch(t)
	alg, rs, goals, w := testgen(t, c, &oracle{feasible: true})
	alg.inner = imprecise{alg.inner}

	status, err := alg.Run(context.Background(), rs)
	require.NoError(t, err)
	require.Equal(t, NoPropertyChecked.WithPrecise(false), status)
	// Imprecise runs do not cover goals.
	require.Empty(t, w.goals)
	require.Equal(t, 2, goals.Len())
	require.NoError(t, rs.Recover())
}

type failingOracle struct{}

func (failingOracle) CheckPath(context.Context, arg.Path) (refinement.Verdict, error) {
	return refinement.Verdict{}, refinement.ErrCounterexampleAnalysisFailed
}

func TestTestGenImprecisionTolerance(t *testing.T) {
	c, _, _ := branch(t)
	alg, rs, _, w := testgen(t, c, failingOracle{})
	status, err := alg.Run(context.Background(), rs)
	require.NoError(t, err)
	require.False(t, status.Precise)
	require.Empty(t, w.goals)

	alg, rs, _, _ = testgen(t, c, failingOracle{})
	alg.ZeroImprecisionTolerance = true
	_, err = alg.Run(context.Background(), rs)
	require.ErrorIs(t, err, refinement.ErrCounterexampleAnalysisFailed)
	require.NoError(t, rs.Recover())
}

func TestRestartPasses(t *testing.T) {
	c := testutil.Linear()
	a := &testutil.CPA{}
	rs, err := reached.NewARGReachedSet(reached.Options{}, nil)
	require.NoError(t, err)
	_, err = Initialize(a, rs, c.Entry)
	require.NoError(t, err)

	st := stats.New("test")
	alg := NewRestartAlgorithm(NewCPAAlgorithm(a, Options{}, st, nil), 3, st, nil)
	passes := 0
	alg.AfterPass = func(pass int, rs *reached.ARGReachedSet) error {
		require.Equal(t, passes, pass)
		require.Len(t, rs.Targets(), 1)
		passes++
		return nil
	}

	_, err = alg.Run(context.Background(), rs)
	require.NoError(t, err)
	require.Equal(t, 3, passes)
	require.Equal(t, 3.0, promtest.ToFloat64(st.Restarts))
	require.Equal(t, []arg.ID{rs.FirstState()}, rs.Waitlist())
	require.NoError(t, rs.Recover())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = alg.Run(ctx, rs)
	require.ErrorIs(t, err, context.Canceled)
}
