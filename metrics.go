package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/cs-au-dk/reach/analysis/algorithm"
	"github.com/cs-au-dk/reach/analysis/testtarget"
	"github.com/cs-au-dk/reach/utils"
)

var errNotProved = errors.New("not every property was proved")

func outcomeColor(o algorithm.Outcome) func(...interface{}) string {
	switch o {
	case algorithm.True:
		return utils.OkColor
	case algorithm.False:
		return utils.ErrorColor
	}
	return utils.WarnColor
}

// report prints the verdict of a run, its counterexample and, if enabled,
// its statistics.
func (p *pipeline) report(w io.Writer, r *run) error {
	res := r.result
	fmt.Fprintf(w, "%s %s: %s", utils.FunColor(p.cfa.Function), r.property, outcomeColor(res.Outcome)(res.Outcome))
	if res.Reason != "" {
		fmt.Fprintf(w, " (%s)", res.Reason)
	}
	fmt.Fprintln(w)

	if cex := res.Counterexample; cex != nil {
		fmt.Fprintln(w, "Counterexample:")
		for i, e := range cex.Path.Edges {
			fmt.Fprintf(w, "  %d: %s\n", cex.Path.States[i], utils.EdgeColor(e))
		}
		for _, in := range cex.Inputs {
			fmt.Fprintf(w, "  input %s = %v\n", utils.VarColor(in.Var), in.Value)
		}
		if !cex.Precise {
			fmt.Fprintln(w, "  (the path contains uninterpreted values)")
		}
	}

	if err := p.writeARG(r); err != nil {
		return err
	}
	return p.printMetrics(w, r)
}

func (p *pipeline) reportTests(w io.Writer, r *run, tests *testtarget.Writer) error {
	col := utils.OkColor
	if !r.result.Status.Precise {
		col = utils.WarnColor
	}
	fmt.Fprintf(w, "%s: %s test cases in %s\n", utils.FunColor(p.cfa.Function), col(tests.Count()), tests.Dir)
	if err := p.writeARG(r); err != nil {
		return err
	}
	return p.printMetrics(w, r)
}

func (p *pipeline) printMetrics(w io.Writer, r *run) error {
	if !p.opts.Metrics {
		return nil
	}
	fmt.Fprintf(w, "================ Statistics: %s ================\n", r.property)
	if err := r.stats.Print(w); err != nil {
		return errors.Wrap(err, "gathering statistics")
	}
	fmt.Fprintf(w, "reached_states\t%d\narg_nodes\t%d\n", r.rs.Size(), r.rs.ARG.Size())
	return nil
}
