package algorithm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/analysis/refinement"
)

// Outcome of a verification run.
type Outcome int

const (
	Unknown Outcome = iota
	True
	False
)

func (o Outcome) String() string {
	return [...]string{"UNKNOWN", "TRUE", "FALSE"}[o]
}

// Result is the user-visible verdict of a run.
type Result struct {
	Outcome        Outcome
	Status         Status
	Violated       []cpa.Property
	Counterexample *refinement.Counterexample
	// Reason explains an unknown outcome.
	Reason string
}

// Evaluate derives the verdict from the final reached set, the status and
// error of the run and the counterexample found, if any.
func Evaluate(rs *reached.ARGReachedSet, status Status, cex *refinement.Counterexample, err error) Result {
	res := Result{Status: status, Counterexample: cex, Violated: rs.ViolatedProperties()}

	var failed *refinement.FailedError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		res.Reason = "interrupted"
	case errors.As(err, &failed):
		res.Reason = failed.Error()
	case err != nil:
		res.Reason = err.Error()
	case len(res.Violated) > 0:
		if status.Precise && (cex == nil || cex.Precise) {
			res.Outcome = False
		} else {
			res.Reason = "violation may be spurious"
		}
	case !status.PropertyChecked:
		res.Reason = "no property was checked"
	case rs.HasWaitingState():
		res.Reason = "exploration incomplete"
	case !status.Sound:
		res.Reason = "analysis was unsound"
	case !status.Precise:
		res.Reason = "analysis was imprecise"
	default:
		res.Outcome = True
	}
	return res
}
