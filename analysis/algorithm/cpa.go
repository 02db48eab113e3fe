package algorithm

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/analysis/stats"
)

type Options struct {
	// Return as soon as a target state is added.
	StopAfterTarget bool
	// Abort on transfer failures instead of skipping the failing successor.
	FatalTransferFailures bool
}

func DefaultOptions() Options {
	return Options{StopAfterTarget: true}
}

// CPAAlgorithm computes the fixpoint of a CPA over a reached set.
type CPAAlgorithm struct {
	cpa   cpa.CPA
	opts  Options
	stats *stats.Stats
	log   logrus.FieldLogger
}

func NewCPAAlgorithm(c cpa.CPA, opts Options, st *stats.Stats, log logrus.FieldLogger) *CPAAlgorithm {
	if st == nil {
		st = stats.New("")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CPAAlgorithm{cpa: c, opts: opts, stats: st, log: log}
}

// Initialize seeds an empty reached set with the initial state of the CPA at
// the given location.
func Initialize(c cpa.CPA, rs *reached.ARGReachedSet, entry *cfa.Node) (arg.ID, error) {
	return rs.Initialize(c.InitialState(entry), c.InitialPrecision(entry))
}

// Run pops states from the waitlist and expands them until the waitlist is
// empty, a target is found (if configured) or ctx is done.
func (a *CPAAlgorithm) Run(ctx context.Context, rs *reached.ARGReachedSet) (Status, error) {
	status := SoundAndPrecise
	defer func() {
		a.stats.ReachedSize.Set(float64(rs.Size()))
		a.stats.ARGSize.Set(float64(rs.ARG.Size()))
	}()

	for {
		if err := ctx.Err(); err != nil {
			return status, err
		}
		s, ok := rs.PopFromWaitlist()
		if !ok {
			return status, nil
		}
		a.stats.Pops.Inc()

		target, err := a.expand(ctx, rs, s, &status)
		if err != nil {
			return status, err
		}
		if target && a.opts.StopAfterTarget {
			return status, nil
		}
	}
}

// expand computes the successors of s. It reports whether a target state was
// added.
func (a *CPAAlgorithm) expand(ctx context.Context, rs *reached.ARGReachedSet, s arg.ID, status *Status) (bool, error) {
	state := rs.State(s)
	prec, err := rs.Precision(s)
	if err != nil {
		return false, err
	}
	loc, ok := cpa.Location(state)
	if !ok {
		return false, cpa.InvariantViolation("state %d has no location", s)
	}
	log := a.log.WithField("state", s)
	log.WithField("location", loc).Trace("Expanding state")

	found := false
	edges := loc.Leaving()
	for i, edge := range edges {
		a.stats.Transfers.Inc()
		succs, err := a.cpa.Transfer().SuccessorsForEdge(ctx, state, prec, edge)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, a.interrupted(rs, s, ctxErr)
		}
		if err != nil {
			if err = a.recover(err, status, log); err != nil {
				a.interrupted(rs, s, nil)
				return false, err
			}
			continue
		}
		a.stats.Successors.Add(float64(len(succs)))

		for j, succ := range succs {
			target, err := a.handle(ctx, rs, s, edge, succ, prec, status)
			if err != nil {
				if ctx.Err() != nil {
					return false, a.interrupted(rs, s, err)
				}
				return false, err
			}
			if !rs.Contains(s) {
				// s was merged into a new state that will be expanded.
				return found || target, nil
			}
			if target {
				found = true
				if a.opts.StopAfterTarget {
					if j < len(succs)-1 || i < len(edges)-1 {
						rs.ReAddToWaitlist(s)
					}
					return true, nil
				}
			}
		}
	}
	return found, nil
}

// interrupted puts s back on the waitlist, so that no successors are lost.
func (a *CPAAlgorithm) interrupted(rs *reached.ARGReachedSet, s arg.ID, err error) error {
	if rs.Contains(s) {
		rs.ReAddToWaitlist(s)
	}
	return err
}

// recover absorbs transfer failures unless they are configured to be fatal.
func (a *CPAAlgorithm) recover(err error, status *Status, log logrus.FieldLogger) error {
	var failure *cpa.TransferFailure
	if !errors.As(err, &failure) || a.opts.FatalTransferFailures {
		return err
	}
	a.stats.TransferFailures.Inc()
	*status = status.WithPrecise(false)
	log.WithError(err).Warn("Skipping successor")
	return nil
}

func (a *CPAAlgorithm) handle(ctx context.Context, rs *reached.ARGReachedSet, s arg.ID, edge *cfa.Edge, succ cpa.AbstractState, prec cpa.Precision, status *Status) (bool, error) {
	_, partition := rs.PartitionStates(succ)
	res, err := a.cpa.PrecisionAdjustment().Prec(succ, prec, partition)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if err != nil {
		return false, a.recover(err, status, a.log.WithField("state", s))
	}
	if res.Action == cpa.Break {
		a.stats.Breaks.Inc()
		return false, nil
	}
	c, cprec := res.State, res.Precision

	ids, partition := rs.PartitionStates(c)
	absorbed := false
	if _, sep := a.cpa.Merge().(cpa.MergeSep); !sep && len(ids) > 0 {
		for i, r := range ids {
			if !rs.Contains(r) {
				continue
			}
			merged, err := a.cpa.Merge().Merge(c, partition[i], cprec)
			if err != nil {
				return false, err
			}
			if cpa.Same(merged, partition[i]) {
				continue
			}
			if _, err := rs.ReplaceMerged(r, merged, cprec, s, edge); err != nil {
				return false, err
			}
			a.stats.Merges.Inc()
			absorbed = true
		}
		ids, partition = rs.PartitionStates(c)
	}

	stop, err := a.cpa.Stop().Stop(c, partition, cprec)
	if err != nil {
		return false, err
	}
	if stop {
		a.stats.Covered.Inc()
		if absorbed || !rs.Contains(s) {
			// The merged state has s as a parent already.
			return false, nil
		}
		coverer, err := a.coverer(c, ids, partition)
		if err != nil || coverer == arg.None {
			return false, err
		}
		_, err = rs.AddCovered(s, edge, c, coverer)
		return false, err
	}
	if !rs.Contains(s) {
		return false, nil
	}

	id, err := rs.AddChild(s, edge, c, cprec)
	if err != nil {
		return false, err
	}
	if cpa.IsTarget(c) {
		a.stats.Targets.Inc()
		a.log.WithFields(logrus.Fields{"state": id, "properties": cpa.ViolatedProperties(c)}).Debug("Reached target state")
		return true, nil
	}
	return false, nil
}

// coverer is the first state of the partition that covers c on its own. With
// a joining stop operator there may be none.
func (a *CPAAlgorithm) coverer(c cpa.AbstractState, ids []arg.ID, partition []cpa.AbstractState) (arg.ID, error) {
	dom := a.cpa.Domain()
	for i, r := range partition {
		leq, err := dom.LessOrEqual(c, r)
		if err != nil {
			return arg.None, err
		}
		if leq {
			return ids[i], nil
		}
	}
	return arg.None, nil
}
