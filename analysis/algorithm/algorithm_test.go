package algorithm

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/analysis/stats"
	"github.com/cs-au-dk/reach/testutil"
)

type run struct {
	rs     *reached.ARGReachedSet
	stats  *stats.Stats
	status Status
	err    error
}

func explore(t *testing.T, ctx context.Context, c *cfa.CFA, a cpa.CPA, opts Options) run {
	rs, err := reached.NewARGReachedSet(reached.Options{}, nil)
	require.NoError(t, err)
	_, err = Initialize(a, rs, c.Entry)
	require.NoError(t, err)

	st := stats.New("test")
	status, err := NewCPAAlgorithm(a, opts, st, nil).Run(ctx, rs)
	require.NoError(t, rs.Recover())
	return run{rs, st, status, err}
}

func TestLinearReachesError(t *testing.T) {
	c := testutil.Linear()
	r := explore(t, context.Background(), c, &testutil.CPA{}, DefaultOptions())
	require.NoError(t, r.err)
	require.Equal(t, SoundAndPrecise, r.status)

	require.LessOrEqual(t, promtest.ToFloat64(r.stats.Pops), 3.0)
	targets := r.rs.Targets()
	require.Len(t, targets, 1)
	n := r.rs.ARG.Node(targets[0])
	require.Len(t, n.Parents(), 1)
	require.Same(t, c.Edges[1], n.EdgeFrom(n.Parents()[0]))

	res := Evaluate(r.rs, r.status, nil, r.err)
	require.Equal(t, False, res.Outcome)
	require.Equal(t, []cpa.Property{testutil.ErrorProperty}, res.Violated)
}

func TestCoveredJoin(t *testing.T) {
	c := testutil.Diamond()
	r := explore(t, context.Background(), c, &testutil.CPA{}, DefaultOptions())
	require.NoError(t, r.err)

	join := r.rs.Partition(c.Nodes[3].ID)
	require.Equal(t, []arg.ID{4}, join)
	covered := r.rs.ARG.Node(5)
	require.Equal(t, join[0], covered.CoveredBy())
	require.Equal(t, []arg.ID{3}, covered.Parents())
	require.False(t, r.rs.Contains(5))
	require.Equal(t, 1.0, promtest.ToFloat64(r.stats.Covered))

	require.Equal(t, True, Evaluate(r.rs, r.status, nil, r.err).Outcome)
}

func TestCoveredStatesViolateNothingNew(t *testing.T) {
	b := cfa.NewBuilder("covered")
	entry, left, right, join := b.Node("entry"), b.Node("left"), b.Node("right"), b.Node("join")
	b.Assign(entry, left, "x", cfa.True)
	b.Assign(entry, right, "x", cfa.False)
	b.Blank(left, join, "")
	b.Blank(right, join, "")
	b.Fail(join, testutil.ErrorProperty)
	c, err := b.Build(entry, nil)
	require.NoError(t, err)

	r := explore(t, context.Background(), c, &testutil.CPA{}, Options{})
	require.NoError(t, r.err)

	found := 0
	for _, id := range r.rs.ARG.Nodes() {
		n := r.rs.ARG.Node(id)
		if !n.IsCovered() {
			continue
		}
		found++
		var props []cpa.Property
		for _, d := range r.rs.ARG.Subtree(n.CoveredBy()) {
			props = append(props, r.rs.ARG.Node(d).ViolatedProperties()...)
		}
		require.Contains(t, props, testutil.ErrorProperty)
	}
	require.Equal(t, 1, found)
	require.Len(t, r.rs.Targets(), 1)
	require.False(t, r.rs.HasWaitingState())
}

func TestMergeJoinReplacesReachedState(t *testing.T) {
	c := testutil.Diamond()
	a := &testutil.CPA{Gen: map[int]uint64{0: 1, 1: 2}, JoinMerge: true}
	r := explore(t, context.Background(), c, a, DefaultOptions())
	require.NoError(t, r.err)

	join := r.rs.Partition(c.Nodes[3].ID)
	require.Len(t, join, 1)
	require.Equal(t, uint64(3), r.rs.State(join[0]).(*testutil.State).Facts)
	require.Equal(t, []arg.ID{2, 3}, r.rs.ARG.Node(join[0]).Parents())
	require.Equal(t, 1.0, promtest.ToFloat64(r.stats.Merges))

	exit := r.rs.Partition(c.Nodes[4].ID)
	require.Len(t, exit, 1)
	require.Equal(t, uint64(3), r.rs.State(exit[0]).(*testutil.State).Facts)
	for _, id := range r.rs.ARG.Nodes() {
		require.False(t, r.rs.ARG.Node(id).IsCovered())
	}
}

func TestPrecisionAdjustmentBreak(t *testing.T) {
	c := testutil.Diamond()
	r := explore(t, context.Background(), c, &testutil.CPA{BreakAt: map[int]bool{1: true}}, DefaultOptions())
	require.NoError(t, r.err)

	require.Empty(t, r.rs.Partition(c.Nodes[1].ID))
	require.Len(t, r.rs.Partition(c.Nodes[3].ID), 1)
	require.Equal(t, 1.0, promtest.ToFloat64(r.stats.Breaks))
}

func TestTransferFailures(t *testing.T) {
	c := testutil.Diamond()
	a := &testutil.CPA{Fail: map[int]bool{0: true}}

	r := explore(t, context.Background(), c, a, DefaultOptions())
	require.NoError(t, r.err)
	require.False(t, r.status.Precise)
	require.Empty(t, r.rs.Partition(c.Nodes[1].ID))
	require.Len(t, r.rs.Partition(c.Nodes[4].ID), 1)
	require.Equal(t, Unknown, Evaluate(r.rs, r.status, nil, r.err).Outcome)

	r = explore(t, context.Background(), c, a, Options{StopAfterTarget: true, FatalTransferFailures: true})
	var failure *cpa.TransferFailure
	require.True(t, errors.As(r.err, &failure))
	require.Same(t, c.Edges[0], failure.Edge)
	require.Equal(t, []arg.ID{1}, r.rs.Waitlist())
}

func TestCancellationKeepsReachedSetConsistent(t *testing.T) {
	c := testutil.Chain(5, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &testutil.CPA{}
	a.OnTransfer = func(*cfa.Edge) {
		if a.Transfers == 2 {
			cancel()
		}
	}
	r := explore(t, ctx, c, a, DefaultOptions())
	require.ErrorIs(t, r.err, context.Canceled)

	require.Equal(t, 2.0, promtest.ToFloat64(r.stats.Pops))
	require.Equal(t, 2, r.rs.Size())
	require.Equal(t, []arg.ID{2}, r.rs.Waitlist())
	require.Equal(t, Unknown, Evaluate(r.rs, r.status, nil, r.err).Outcome)
}

func TestContinueAfterTarget(t *testing.T) {
	c := testutil.Linear()
	r := explore(t, context.Background(), c, &testutil.CPA{}, Options{})
	require.NoError(t, r.err)
	require.Len(t, r.rs.Targets(), 1)
	require.False(t, r.rs.HasWaitingState())
}

func TestTopologicalOrder(t *testing.T) {
	c := testutil.Loop()
	rs, err := reached.NewARGReachedSet(reached.Options{
		Order:    reached.Topological,
		Priority: reached.LocationPriority(c),
	}, nil)
	require.NoError(t, err)
	a := &testutil.CPA{}
	_, err = Initialize(a, rs, c.Entry)
	require.NoError(t, err)

	var order []*cfa.Edge
	a.OnTransfer = func(e *cfa.Edge) { order = append(order, e) }
	status, err := NewCPAAlgorithm(a, Options{}, nil, nil).Run(context.Background(), rs)
	require.NoError(t, err)
	require.True(t, status.Sound)

	// The loop is finished before the code after it is expanded.
	require.Equal(t, []*cfa.Edge{c.Edges[0], c.Edges[1], c.Edges[3], c.Edges[2]}, order[:4])
	require.Len(t, rs.Targets(), 1)
	require.NoError(t, rs.Recover())
}
