package algorithm

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/analysis/refinement"
	"github.com/cs-au-dk/reach/analysis/stats"
)

// CEGARAlgorithm alternates exploration and refinement until no target is
// reached or a feasible counterexample is found.
type CEGARAlgorithm struct {
	inner   Algorithm
	refiner *refinement.Refiner
	// MaxRefinements bounds the number of refinements. Zero means unbounded.
	MaxRefinements int

	stats          *stats.Stats
	log            logrus.FieldLogger
	refinements    int
	counterexample *refinement.Counterexample
}

func NewCEGARAlgorithm(inner Algorithm, refiner *refinement.Refiner, maxRefinements int, st *stats.Stats, log logrus.FieldLogger) *CEGARAlgorithm {
	if st == nil {
		st = stats.New("")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CEGARAlgorithm{inner: inner, refiner: refiner, MaxRefinements: maxRefinements, stats: st, log: log}
}

// Counterexample found by the last run, if any.
func (a *CEGARAlgorithm) Counterexample() *refinement.Counterexample { return a.counterexample }

// Refinements performed so far.
func (a *CEGARAlgorithm) Refinements() int { return a.refinements }

func (a *CEGARAlgorithm) Run(ctx context.Context, rs *reached.ARGReachedSet) (Status, error) {
	a.counterexample = nil
	status := SoundAndPrecise
	for {
		st, err := a.inner.Run(ctx, rs)
		status = status.Update(st)
		if err != nil {
			return status, err
		}
		if len(rs.Targets()) == 0 {
			return status, nil
		}

		cex, err := a.refiner.PerformRefinement(ctx, rs)
		if err != nil {
			a.log.WithError(err).Warn("Refinement failed")
			return status, err
		}
		if cex != nil {
			a.counterexample = cex
			return status.WithPrecise(status.Precise && cex.Precise), nil
		}

		a.refinements++
		a.log.WithField("refinement", a.refinements).Debug("Resuming exploration")
		if a.MaxRefinements > 0 && a.refinements >= a.MaxRefinements {
			a.log.WithField("refinement", a.refinements).Warn("Refinement limit reached")
			return status, nil
		}
		if err := ctx.Err(); err != nil {
			return status, err
		}
	}
}
