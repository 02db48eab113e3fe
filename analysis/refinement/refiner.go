package refinement

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/analysis/stats"
)

// Refiner checks the error path to the target of a reached set and either
// reports it as a counterexample or refines the analysis.
type Refiner struct {
	Oracle   Oracle
	Strategy Strategy

	stats *stats.Stats
	log   logrus.FieldLogger
	seen  map[string]bool
}

func NewRefiner(oracle Oracle, strategy Strategy, st *stats.Stats, log logrus.FieldLogger) *Refiner {
	if st == nil {
		st = stats.New("")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Refiner{Oracle: oracle, Strategy: strategy, stats: st, log: log, seen: make(map[string]bool)}
}

// PerformRefinement inspects the most recent target state. It returns the
// counterexample if the path to the target is feasible, and nil after a
// successful refinement.
func (r *Refiner) PerformRefinement(ctx context.Context, rs *reached.ARGReachedSet) (*Counterexample, error) {
	targets := rs.Targets()
	if len(targets) == 0 {
		return nil, cpa.IllegalState("refinement without a target state")
	}
	target := targets[len(targets)-1]
	path, err := rs.Path(target)
	if err != nil {
		return nil, err
	}

	log := r.log.WithFields(logrus.Fields{"target": target, "length": path.Len()})
	log.Debug("Checking error path")

	verdict, err := r.checkPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if verdict.Feasible {
		r.stats.Counterexamples.Inc()
		log.WithField("precise", verdict.Precise).Info("Error path is feasible")
		return &Counterexample{Target: target, Path: path, Inputs: verdict.Inputs, Precise: verdict.Precise}, nil
	}

	if len(verdict.Interpolants) != len(path.States) {
		return nil, &FailedError{
			Reason: InterpolationFailed,
			Path:   path,
			Err:    errors.Errorf("%d interpolants for a path of %d states", len(verdict.Interpolants), len(path.States)),
		}
	}

	key := edgeKey(path)
	repeated := r.seen[key]
	r.seen[key] = true

	done := stats.Time(r.stats.RefinementDuration)
	before := rs.Size()
	err = r.Strategy.PerformRefinement(ctx, rs, path, verdict.Interpolants, repeated)
	done()
	if err != nil {
		r.stats.RefinementFailures.Inc()
		return nil, err
	}
	r.stats.Refinements.Inc()
	if pruned := before - rs.Size(); pruned > 0 {
		r.stats.PrunedStates.Add(float64(pruned))
	}
	log.WithField("repeated", repeated).Debug("Refined error path")
	return nil, nil
}

func (r *Refiner) checkPath(ctx context.Context, path arg.Path) (Verdict, error) {
	r.stats.SolverCalls.Inc()
	done := stats.Time(r.stats.SolverDuration)
	verdict, err := r.Oracle.CheckPath(ctx, path)
	done()

	switch {
	case err == nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, ctxErr
		}
		return verdict, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrCounterexampleAnalysisFailed):
		return Verdict{}, err
	}
	return Verdict{}, errors.Wrapf(ErrCounterexampleAnalysisFailed, "%v", err)
}

// edgeKey identifies a path by its edge sequence.
func edgeKey(path arg.Path) string {
	var sb strings.Builder
	for _, e := range path.Edges {
		if e == nil {
			sb.WriteString("-,")
			continue
		}
		fmt.Fprintf(&sb, "%s:%d,", e.From.Function, e.ID)
	}
	return sb.String()
}
