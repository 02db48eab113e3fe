package predicate

import (
	"github.com/benbjohnson/immutable"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/utils"
)

// State is a formula over the program variables at a location: the strongest
// postcondition of the parent's abstraction through the edge into the
// state. It is abstracted to the predicates of its precision when it is
// expanded, so a state kept across a refinement is abstracted again with the
// refined precision.
type State struct {
	node *cfa.Node
	// Visits of each location along the path to the state, this one included.
	visits  *immutable.Map[*cfa.Node, int]
	formula cfa.Expr
}

func initialState(node *cfa.Node) *State {
	return &State{
		node:    node,
		visits:  immutable.NewMap[*cfa.Node, int](nodeHasher{}).Set(node, 1),
		formula: cfa.True,
	}
}

func (s *State) Location() *cfa.Node { return s.node }
func (s *State) PartitionKey() any   { return s.node.ID }

// Instance is the number of earlier visits of the location on the path.
func (s *State) Instance() int {
	n, _ := s.visits.Get(s.node)
	return n - 1
}

func (s *State) LocationInstance() LocationInstance {
	return LocationInstance{s.node, s.Instance()}
}

func (s *State) Formula() cfa.Expr { return s.formula }

// Entails reports whether e holds in every concrete state of s.
func (s *State) Entails(e cfa.Expr) bool { return implies(s.formula, e) }

// Abstract is the abstraction of the state under the predicates of prec at
// its location instance.
func (s *State) Abstract(prec *Precision) cfa.Expr {
	return abstraction(s.formula, prec.Predicates(s.node, s.Instance()))
}

func (s *State) String() string {
	return utils.NodeColor(s.node) + "{" + s.formula.String() + "}"
}

// stateOf finds the predicate component of a possibly composite state.
func stateOf(s cpa.AbstractState) (*State, bool) {
	switch s := s.(type) {
	case *State:
		return s, true
	case *cpa.CompositeState:
		for _, c := range s.Components() {
			if ps, ok := stateOf(c); ok {
				return ps, true
			}
		}
	}
	return nil, false
}

// precisionOf finds the predicate component of a possibly composite
// precision.
func precisionOf(p cpa.Precision) (*Precision, bool) {
	switch p := p.(type) {
	case *Precision:
		return p, true
	case *cpa.CompositePrecision:
		for _, c := range p.Components() {
			if pp, ok := precisionOf(c); ok {
				return pp, true
			}
		}
	}
	return nil, false
}

// withPrecision replaces the predicate component of p.
func withPrecision(p cpa.Precision, np *Precision) cpa.Precision {
	if cp, ok := p.(*cpa.CompositePrecision); ok {
		for i, c := range cp.Components() {
			if _, ok := precisionOf(c); ok {
				return cp.With(i, withPrecision(c, np))
			}
		}
		return cp
	}
	return np
}
