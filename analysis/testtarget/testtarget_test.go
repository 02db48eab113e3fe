package testtarget

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/analysis/refinement"
	"github.com/cs-au-dk/reach/testutil"
)

func TestSelect(t *testing.T) {
	c := testutil.Loop()

	goals, err := Select(c, Branches)
	require.NoError(t, err)
	require.Equal(t, []*cfa.Edge{c.Edges[1], c.Edges[3], c.Edges[4], c.Edges[5]}, goals.Edges())

	goals, err = Select(c, ErrorCalls)
	require.NoError(t, err)
	require.Equal(t, []*cfa.Edge{c.Edges[6]}, goals.Edges())

	_, err = Select(c, "lines")
	require.ErrorIs(t, err, cpa.ErrInvalidConfiguration)
}

func TestGoalTargets(t *testing.T) {
	c := testutil.Loop()
	goals := NewGoals(c.Edges[1])
	a := &CPA{Goals: goals}
	ctx := context.Background()

	succs, err := a.SuccessorsForEdge(ctx, a.InitialState(c.Entry), Precision{}, c.Edges[1])
	require.NoError(t, err)
	require.True(t, cpa.IsTarget(succs[0]))
	require.Equal(t, []cpa.Property{CoverageProperty}, cpa.ViolatedProperties(succs[0]))

	goals.Remove(c.Edges[1])
	require.Zero(t, goals.Len())
	succs, err = a.SuccessorsForEdge(ctx, a.InitialState(c.Entry), Precision{}, c.Edges[1])
	require.NoError(t, err)
	require.False(t, cpa.IsTarget(succs[0]))

	stop, err := a.Stop().Stop(State{Goal: c.Edges[1]}, []cpa.AbstractState{State{}}, Precision{})
	require.NoError(t, err)
	require.False(t, stop)
}

func TestWriter(t *testing.T) {
	c := testutil.Loop()
	dir := filepath.Join(t.TempDir(), "tests")
	w, err := NewWriter(dir, nil)
	require.NoError(t, err)

	cex := &refinement.Counterexample{
		Target: 4,
		Path: arg.Path{
			States: []arg.ID{1, 2, 4},
			Edges:  []*cfa.Edge{c.Edges[0], c.Edges[1]},
		},
		Inputs:  []refinement.Input{{Position: 1, Edge: c.Edges[1], Var: "c", Value: true}},
		Precise: true,
	}
	require.NoError(t, w.WriteTestCase(c.Edges[1], cex))
	require.NoError(t, w.WriteTestCase(c.Edges[1], cex))
	require.Equal(t, 2, w.Count())

	tc, err := ReadTestCase(filepath.Join(dir, "testcase-002.yaml"))
	require.NoError(t, err)
	require.Equal(t, NewTestCase(c.Edges[1], cex), tc)
	require.Equal(t, "loop", tc.Function)
	require.Equal(t, []Input{{Var: "c", Value: true, Edge: c.Edges[1].String()}}, tc.Inputs)
	require.Len(t, tc.Path, 2)
}
