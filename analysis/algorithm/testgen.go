package algorithm

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/analysis/refinement"
	"github.com/cs-au-dk/reach/analysis/stats"
)

// Goals are the outstanding coverage goals of test generation.
type Goals interface {
	Contains(edge *cfa.Edge) bool
	Remove(edge *cfa.Edge)
	Len() int
}

// TestCaseWriter emits a test case reaching a goal.
type TestCaseWriter interface {
	WriteTestCase(goal *cfa.Edge, cex *refinement.Counterexample) error
}

// TestGenAlgorithm repeatedly runs an inner algorithm that stops at goal
// targets, and writes a test case for every goal reached by a feasible path.
type TestGenAlgorithm struct {
	inner   Algorithm
	goals   Goals
	checker refinement.Oracle
	writer  TestCaseWriter
	// ZeroImprecisionTolerance aborts on analysis and solver failures
	// instead of continuing with an imprecise status.
	ZeroImprecisionTolerance bool

	stats *stats.Stats
	log   logrus.FieldLogger
}

func NewTestGenAlgorithm(inner Algorithm, goals Goals, checker refinement.Oracle, writer TestCaseWriter, st *stats.Stats, log logrus.FieldLogger) *TestGenAlgorithm {
	if st == nil {
		st = stats.New("")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TestGenAlgorithm{inner: inner, goals: goals, checker: checker, writer: writer, stats: st, log: log}
}

func (a *TestGenAlgorithm) Run(ctx context.Context, rs *reached.ARGReachedSet) (Status, error) {
	if err := rs.DropUnreachedChildrenOfWaiting(); err != nil {
		return NoPropertyChecked, err
	}

	status := NoPropertyChecked
	for rs.HasWaitingState() && a.goals.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return status.WithPrecise(false), err
		}

		st, err := a.inner.Run(ctx, rs)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			st = st.WithPrecise(false)
		case refinement.IsFailure(err) && !a.ZeroImprecisionTolerance:
			a.log.WithError(err).Warn("Analysis not completed")
			st = st.WithPrecise(false)
			err = nil
		default:
			return status.WithPrecise(false), err
		}
		status = status.Update(st.WithPropertyChecked(false))

		if herr := a.handleTarget(ctx, rs, st.Precise, &status); herr != nil {
			return status, herr
		}
		if err != nil {
			return status, err
		}
	}

	if a.goals.Len() == 0 {
		rs.ClearWaitlist()
	}
	return status, nil
}

// handleTarget writes a test case for the target state left by the inner
// algorithm, if any, and removes it from the reached set.
func (a *TestGenAlgorithm) handleTarget(ctx context.Context, rs *reached.ARGReachedSet, precise bool, status *Status) error {
	targets := rs.Targets()
	switch {
	case len(targets) == 0:
		a.log.Debug("No target state in the reached set")
		return nil
	case len(targets) > 1:
		return cpa.InvariantViolation("%d target states in the reached set", len(targets))
	}
	target := targets[0]
	n := rs.ARG.Node(target)
	if len(n.Parents()) != 1 {
		return cpa.InvariantViolation("target %d has %d parents", target, len(n.Parents()))
	}
	goal := n.EdgeFrom(n.Parents()[0])
	log := a.log.WithFields(logrus.Fields{"state": target, "goal": goal})

	var cerr error
	// Goals stay outstanding until a feasible path reaches them. A target
	// that covers nothing is dropped without exploring its edge again.
	requeue := false
	switch {
	case goal == nil || !a.goals.Contains(goal):
		log.Debug("Target is not an outstanding goal")
		requeue = true
	case !precise:
		log.Debug("Status is imprecise, goal stays outstanding")
	default:
		requeue, cerr = a.cover(ctx, rs, target, goal, status, log)
		if requeue {
			a.goals.Remove(goal)
		}
	}

	remove := rs.DropTarget
	if requeue {
		remove = rs.RemoveTarget
	}
	if _, _, err := remove(target); err != nil {
		return err
	}
	return cerr
}

// cover checks the path to a goal target and writes a test case if it is
// feasible. It reports whether the goal was covered.
func (a *TestGenAlgorithm) cover(ctx context.Context, rs *reached.ARGReachedSet, target arg.ID, goal *cfa.Edge, status *Status, log logrus.FieldLogger) (bool, error) {
	path, err := rs.Path(target)
	if err != nil {
		return false, err
	}
	a.stats.SolverCalls.Inc()
	done := stats.Time(a.stats.SolverDuration)
	verdict, err := a.checker.CheckPath(ctx, path)
	done()
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		*status = status.WithPrecise(false)
		return false, err
	case err != nil:
		*status = status.WithPrecise(false)
		if a.ZeroImprecisionTolerance {
			return false, err
		}
		log.WithError(err).Warn("Counterexample check failed")
		return false, nil
	case !verdict.Feasible:
		log.Debug("Path to goal is infeasible, goal stays outstanding")
		*status = status.WithPrecise(false)
		return false, nil
	}

	cex := &refinement.Counterexample{Target: target, Path: path, Inputs: verdict.Inputs, Precise: verdict.Precise}
	if err := a.writer.WriteTestCase(goal, cex); err != nil {
		return false, errors.Wrap(err, "writing test case")
	}
	a.stats.CoveredGoals.Inc()
	a.stats.TestCases.Inc()
	log.Info("Covered goal")
	return true, nil
}
