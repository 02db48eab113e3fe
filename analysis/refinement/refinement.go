// Package refinement inspects the error paths found by the reachability
// engine. A feasible path is reported as a counterexample, an infeasible one
// is handed to a strategy that strengthens the precision and prunes the
// spurious part of the abstract reachability graph.
package refinement

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/reached"
)

// ErrCounterexampleAnalysisFailed is returned when the feasibility of a path
// could not be decided.
var ErrCounterexampleAnalysisFailed = errors.New("counterexample analysis failed")

// Reason why a refinement failed.
type Reason int

const (
	// The same infeasible path was found again and no new predicates exclude it.
	RepeatedCounterexample Reason = iota
	// The interpolants do not match the path.
	InterpolationFailed
)

func (r Reason) String() string {
	switch r {
	case RepeatedCounterexample:
		return "repeated counterexample"
	case InterpolationFailed:
		return "interpolation failed"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// FailedError reports a refinement that could not make progress. The reached
// set is left consistent.
type FailedError struct {
	Reason Reason
	Path   arg.Path
	Err    error
}

func (e *FailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refinement failed: %v: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("refinement failed: %v", e.Reason)
}

func (e *FailedError) Unwrap() error { return e.Err }

// IsFailure reports whether err is a refinement or counterexample analysis
// failure, after which an analysis can continue imprecisely.
func IsFailure(err error) bool {
	var failed *FailedError
	return errors.As(err, &failed) || errors.Is(err, ErrCounterexampleAnalysisFailed)
}

// Interpolant at a path position. It over-approximates the states reachable
// by the path prefix and is inconsistent with the suffix. It is a formula
// over the program variables; the zero value is true.
type Interpolant struct {
	Formula cfa.Expr
}

var (
	True  = Interpolant{}
	False = Interpolant{Formula: cfa.False}
)

func (i Interpolant) IsTrue() bool  { return i.Formula == nil || i.Formula == cfa.True }
func (i Interpolant) IsFalse() bool { return i.Formula == cfa.False }

func (i Interpolant) String() string {
	if i.Formula == nil {
		return "true"
	}
	return i.Formula.String()
}

// Input is a value chosen for a program input along a feasible path.
type Input struct {
	Position int
	Edge     *cfa.Edge
	Var      string
	Value    bool
}

// Verdict of a path feasibility check.
type Verdict struct {
	Feasible bool
	// Precise is false if the path contains operations the oracle does not
	// interpret exactly, so that a feasible verdict may be spurious.
	Precise bool
	// Inputs of a feasible path, in path order.
	Inputs []Input
	// Interpolants of an infeasible path, one per path state. The first is
	// true and the last is false.
	Interpolants []Interpolant
}

// Oracle decides the feasibility of paths.
type Oracle interface {
	CheckPath(ctx context.Context, path arg.Path) (Verdict, error)
}

// Strategy refines the precision of an analysis along an infeasible path.
type Strategy interface {
	PerformRefinement(ctx context.Context, rs *reached.ARGReachedSet, path arg.Path, itps []Interpolant, repeated bool) error
}

// Counterexample is a feasible path to a target state.
type Counterexample struct {
	Target  arg.ID
	Path    arg.Path
	Inputs  []Input
	Precise bool
}

func (c *Counterexample) String() string {
	var sb strings.Builder
	for i, e := range c.Path.Edges {
		fmt.Fprintf(&sb, "%d: %v\n", c.Path.States[i], e)
	}
	fmt.Fprintf(&sb, "%d: target", c.Target)
	return sb.String()
}
