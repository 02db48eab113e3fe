package algorithm

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/analysis/stats"
)

// RestartAlgorithm runs an inner algorithm for a number of passes. After
// every pass the first state is put back on the waitlist.
type RestartAlgorithm struct {
	inner  Algorithm
	passes int
	// AfterPass is called after every completed pass.
	AfterPass func(pass int, rs *reached.ARGReachedSet) error

	stats *stats.Stats
	log   logrus.FieldLogger
}

func NewRestartAlgorithm(inner Algorithm, passes int, st *stats.Stats, log logrus.FieldLogger) *RestartAlgorithm {
	if st == nil {
		st = stats.New("")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RestartAlgorithm{inner: inner, passes: passes, stats: st, log: log}
}

func (a *RestartAlgorithm) Run(ctx context.Context, rs *reached.ARGReachedSet) (Status, error) {
	status := SoundAndPrecise
	for i := 0; i < a.passes; i++ {
		a.log.WithField("pass", i+1).Debug("Starting pass")
		st, err := a.inner.Run(ctx, rs)
		status = status.Update(st)
		if err != nil {
			return status, err
		}
		if a.AfterPass != nil {
			if err := a.AfterPass(i, rs); err != nil {
				return status, err
			}
		}
		if err := ctx.Err(); err != nil {
			return status, err
		}
		if err := rs.ReAddToWaitlist(rs.FirstState()); err != nil {
			return status, err
		}
		a.stats.Restarts.Inc()
	}
	return status, nil
}
