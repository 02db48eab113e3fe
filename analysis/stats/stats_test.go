package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRunsAreIndependent(t *testing.T) {
	a, b := New("a"), New("b")
	a.Pops.Inc()
	a.Pops.Inc()
	b.Pops.Inc()

	require.Equal(t, 2.0, testutil.ToFloat64(a.Pops))
	require.Equal(t, 1.0, testutil.ToFloat64(b.Pops))
}

func TestSnapshot(t *testing.T) {
	s := New("p")
	s.Refinements.Add(3)
	s.ReachedSize.Set(7)
	s.SolverDuration.Observe(0.5)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Equal(t, 3.0, snap["reach_refinements_total"])
	require.Equal(t, 7.0, snap["reach_reached_states"])
	require.Equal(t, 1.0, snap["reach_solver_duration_seconds_count"])
	require.Equal(t, 0.5, snap["reach_solver_duration_seconds_sum"])
}

func TestPrintIsSorted(t *testing.T) {
	s := New("p")
	s.Transfers.Add(12)
	var buf bytes.Buffer
	require.NoError(t, s.Print(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.True(t, strings.HasPrefix(lines[0], "arg_nodes"))
	require.Contains(t, buf.String(), "transfers_total")
	for i := 1; i < len(lines); i++ {
		require.LessOrEqual(t, strings.Fields(lines[i-1])[0], strings.Fields(lines[i])[0])
	}
	require.Regexp(t, `transfers_total\s+12`, buf.String())
}
