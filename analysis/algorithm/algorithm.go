// Package algorithm contains the drivers of the reachability analysis: the
// fixpoint exploration of a CPA, the counterexample guided refinement loop,
// test generation and restart passes. Algorithms wrap each other and all
// operate on an ARG-aware reached set.
package algorithm

import (
	"context"
	"fmt"

	"github.com/cs-au-dk/reach/analysis/reached"
)

// Status of a run.
type Status struct {
	// Sound is false if parts of the state space were skipped.
	Sound bool
	// Precise is false if reported violations may be spurious.
	Precise bool
	// PropertyChecked is false for runs that do not check a property, such
	// as test generation.
	PropertyChecked bool
}

var (
	SoundAndPrecise     = Status{Sound: true, Precise: true, PropertyChecked: true}
	NoPropertyChecked   = Status{Sound: true, Precise: true}
	UnsoundAndImprecise = Status{PropertyChecked: true}
)

func (s Status) WithSound(b bool) Status {
	s.Sound = b
	return s
}

func (s Status) WithPrecise(b bool) Status {
	s.Precise = b
	return s
}

func (s Status) WithPropertyChecked(b bool) Status {
	s.PropertyChecked = b
	return s
}

// Update combines the status of two runs over the same reached set.
func (s Status) Update(o Status) Status {
	return Status{
		Sound:           s.Sound && o.Sound,
		Precise:         s.Precise && o.Precise,
		PropertyChecked: s.PropertyChecked || o.PropertyChecked,
	}
}

func (s Status) String() string {
	return fmt.Sprintf("sound=%t precise=%t checked=%t", s.Sound, s.Precise, s.PropertyChecked)
}

// Algorithm explores the state space of a reached set.
type Algorithm interface {
	Run(ctx context.Context, rs *reached.ARGReachedSet) (Status, error)
}
