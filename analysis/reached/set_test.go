package reached

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/testutil"
)

func TestSetAdd(t *testing.T) {
	c := testutil.Diamond()
	s, err := New(Options{})
	require.NoError(t, err)
	prec := &testutil.Precision{}
	st := func(node int) cpa.AbstractState { return &testutil.State{Node: c.Nodes[node]} }

	require.NoError(t, s.Add(1, st(0), prec))
	require.NoError(t, s.Add(2, st(3), prec))
	require.NoError(t, s.Add(3, st(3), prec))

	err = s.Add(2, st(1), prec)
	require.True(t, errors.Is(err, cpa.ErrIllegalState))
	err = s.Add(4, st(1), nil)
	require.True(t, errors.Is(err, cpa.ErrIllegalState))
	_, err = s.Precision(4)
	require.True(t, errors.Is(err, cpa.ErrIllegalState))
	require.True(t, errors.Is(s.ReAddToWaitlist(4), cpa.ErrIllegalState))

	require.Equal(t, arg.ID(1), s.FirstState())
	require.Equal(t, arg.ID(3), s.LastState())
	require.Equal(t, []arg.ID{1, 2, 3}, s.States())
	require.Equal(t, []arg.ID{2, 3}, s.Partition(3))
	require.Equal(t, []arg.ID{2, 3}, s.ReachedForState(st(3)))
	require.Empty(t, s.ReachedForState(st(4)))
	require.Equal(t, []arg.ID{1, 2, 3}, s.Waitlist())
	require.NoError(t, s.Check())
}

func TestSetRemove(t *testing.T) {
	c := testutil.Linear()
	s, err := New(Options{Order: DFS})
	require.NoError(t, err)
	prec := &testutil.Precision{}
	for i, n := range c.Nodes {
		require.NoError(t, s.Add(arg.ID(i+1), &testutil.State{Node: n}, prec))
	}
	require.Equal(t, []cpa.Property{testutil.ErrorProperty}, s.ViolatedProperties())
	require.Equal(t, []arg.ID{3}, s.Targets())

	require.True(t, errors.Is(s.Remove(1), cpa.ErrIllegalState))
	require.NoError(t, s.Remove(3))
	require.Equal(t, arg.ID(2), s.LastState())
	require.Empty(t, s.ViolatedProperties())
	require.Empty(t, s.Partition(c.Nodes[2].ID))

	id, ok := s.PopFromWaitlist()
	require.True(t, ok)
	require.Equal(t, arg.ID(2), id)
	require.True(t, s.Contains(2))
	require.False(t, s.IsWaiting(2))
	require.NoError(t, s.Check())

	s.ClearWaitlist()
	require.False(t, s.HasWaitingState())
	require.Equal(t, 2, s.Size())

	s.Clear()
	require.Zero(t, s.Size())
	require.Equal(t, arg.None, s.FirstState())
	require.NoError(t, s.Add(7, &testutil.State{Node: c.Nodes[0]}, prec))
	require.Equal(t, arg.ID(7), s.FirstState())
}

func TestSetReplaceKeepsFirstState(t *testing.T) {
	c := testutil.Loop()
	s, err := New(Options{})
	require.NoError(t, err)
	require.NoError(t, s.Add(1, &testutil.State{Node: c.Entry}, &testutil.Precision{}))
	s.ClearWaitlist()

	require.NoError(t, s.Replace(1, 2, &testutil.State{Node: c.Entry, Facts: 1}, &testutil.Precision{Level: 1}))
	require.Equal(t, arg.ID(2), s.FirstState())
	require.Equal(t, []arg.ID{2}, s.Waitlist())
	p, err := s.Precision(2)
	require.NoError(t, err)
	require.Equal(t, 1, p.(*testutil.Precision).Level)
	require.NoError(t, s.Check())
}

func TestTopologicalSetUsesLocationPriority(t *testing.T) {
	c := testutil.Loop()
	s, err := New(Options{Order: Topological, Priority: LocationPriority(c)})
	require.NoError(t, err)
	prec := &testutil.Precision{}

	// exit, check, head and entry locations, added in reverse order.
	for i, n := range []int{5, 4, 1, 0} {
		require.NoError(t, s.Add(arg.ID(i+1), &testutil.State{Node: c.Nodes[n]}, prec))
	}
	var popped []arg.ID
	for {
		id, ok := s.PopFromWaitlist()
		if !ok {
			break
		}
		popped = append(popped, id)
	}
	require.Equal(t, []arg.ID{4, 3}, popped[:2])
	require.Len(t, popped, 4)
}
