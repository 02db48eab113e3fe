// Package stats collects the statistics of a single analysis run. Every run
// owns its registry, so concurrent runs never share counters.
package stats

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

const PropertyLabel = "property"

// Stats of one run.
type Stats struct {
	Registry *prometheus.Registry

	Pops             prometheus.Counter
	Transfers        prometheus.Counter
	Successors       prometheus.Counter
	TransferFailures prometheus.Counter
	Breaks           prometheus.Counter
	Merges           prometheus.Counter
	Covered          prometheus.Counter
	Targets          prometheus.Counter

	Refinements        prometheus.Counter
	RefinementFailures prometheus.Counter
	Counterexamples    prometheus.Counter
	SolverCalls        prometheus.Counter
	PrunedStates       prometheus.Counter
	Restarts           prometheus.Counter

	CoveredGoals prometheus.Counter
	TestCases    prometheus.Counter

	ReachedSize prometheus.Gauge
	ARGSize     prometheus.Gauge

	RefinementDuration prometheus.Histogram
	SolverDuration     prometheus.Histogram
}

// New creates the statistics of a run checking the given property.
func New(property string) *Stats {
	labels := prometheus.Labels{PropertyLabel: property}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reach", Name: name, Help: help, ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reach", Name: name, Help: help, ConstLabels: labels,
		})
	}
	histogram := func(name, help string) prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reach", Name: name, Help: help, ConstLabels: labels,
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		})
	}

	s := &Stats{
		Registry: prometheus.NewRegistry(),

		Pops:             counter("waitlist_pops_total", "States popped from the waitlist"),
		Transfers:        counter("transfers_total", "Transfer relation invocations"),
		Successors:       counter("successors_total", "Abstract successors computed"),
		TransferFailures: counter("transfer_failures_total", "Recovered transfer failures"),
		Breaks:           counter("precision_breaks_total", "Successors discarded by precision adjustment"),
		Merges:           counter("merges_total", "Reached states replaced by a merge"),
		Covered:          counter("covered_total", "Successors covered by reached states"),
		Targets:          counter("targets_total", "Target states reached"),

		Refinements:        counter("refinements_total", "Refinements performed"),
		RefinementFailures: counter("refinement_failures_total", "Refinements that failed"),
		Counterexamples:    counter("counterexamples_total", "Feasible counterexamples found"),
		SolverCalls:        counter("solver_calls_total", "Path feasibility checks"),
		PrunedStates:       counter("pruned_states_total", "States removed by refinement"),
		Restarts:           counter("restarts_total", "Exploration restarts"),

		CoveredGoals: counter("covered_goals_total", "Test goals covered"),
		TestCases:    counter("test_cases_total", "Test cases written"),

		ReachedSize: gauge("reached_states", "Size of the reached set"),
		ARGSize:     gauge("arg_nodes", "Number of ARG nodes"),

		RefinementDuration: histogram("refinement_duration_seconds", "Duration of refinements"),
		SolverDuration:     histogram("solver_duration_seconds", "Duration of path feasibility checks"),
	}

	s.Registry.MustRegister(
		s.Pops, s.Transfers, s.Successors, s.TransferFailures, s.Breaks, s.Merges, s.Covered, s.Targets,
		s.Refinements, s.RefinementFailures, s.Counterexamples, s.SolverCalls, s.PrunedStates, s.Restarts,
		s.CoveredGoals, s.TestCases,
		s.ReachedSize, s.ARGSize,
		s.RefinementDuration, s.SolverDuration,
	)
	return s
}

// Time starts a timer for h. The returned function stops it.
func Time(h prometheus.Histogram) func() time.Duration {
	return prometheus.NewTimer(h).ObserveDuration
}

// Snapshot returns the current value of every metric by name. Histograms
// contribute their sample count and sum.
func (s *Stats) Snapshot() (map[string]float64, error) {
	families, err := s.Registry.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "gathering statistics")
	}
	res := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			value(res, f, m)
		}
	}
	return res, nil
}

func value(res map[string]float64, f *io_prometheus_client.MetricFamily, m *io_prometheus_client.Metric) {
	name := f.GetName()
	switch f.GetType() {
	case io_prometheus_client.MetricType_COUNTER:
		res[name] = m.GetCounter().GetValue()
	case io_prometheus_client.MetricType_GAUGE:
		res[name] = m.GetGauge().GetValue()
	case io_prometheus_client.MetricType_HISTOGRAM:
		res[name+"_count"] = float64(m.GetHistogram().GetSampleCount())
		res[name+"_sum"] = m.GetHistogram().GetSampleSum()
	}
}

// Print writes the statistics as a table sorted by name.
func (s *Stats) Print(w io.Writer) error {
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%s\n", strings.TrimPrefix(name, "reach_"), format(snap[name]))
	}
	return tw.Flush()
}

func format(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.4f", v)
}
