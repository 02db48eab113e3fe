package predicate

import (
	"context"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
)

// CPA is the predicate analysis. Abstraction happens when a state is
// expanded: the SAT solver decides which predicates of its precision at its
// location instance hold, and the conjunction of those is carried through
// the edge. A state that is kept across a refinement is therefore
// abstracted with the refined precision.
type CPA struct {
	// Initial predicates of every exploration.
	Initial *Precision
	// JoinMerge merges states at the same location into their common facts
	// instead of keeping them apart.
	JoinMerge bool
}

var _ cpa.CPA = CPA{}

func (CPA) Domain() cpa.AbstractDomain     { return domain{} }
func (CPA) Transfer() cpa.TransferRelation { return transfer{} }
func (c CPA) Merge() cpa.MergeOperator {
	if c.JoinMerge {
		return cpa.MergeJoin{Domain: domain{}}
	}
	return cpa.MergeSep{}
}
func (CPA) Stop() cpa.StopOperator                       { return cpa.StopSep{Domain: domain{}} }
func (CPA) PrecisionAdjustment() cpa.PrecisionAdjustment { return cpa.StaticPrecisionAdjustment{} }

func (CPA) InitialState(node *cfa.Node) cpa.AbstractState { return initialState(node) }

func (c CPA) InitialPrecision(*cfa.Node) cpa.Precision {
	if c.Initial != nil {
		return c.Initial
	}
	return Empty()
}

type domain struct{}

func unpack(s1, s2 cpa.AbstractState) (*State, *State, error) {
	p1, ok1 := s1.(*State)
	p2, ok2 := s2.(*State)
	if !ok1 || !ok2 {
		return nil, nil, cpa.InvariantViolation("%T and %T are not predicate states", s1, s2)
	}
	return p1, p2, nil
}

// Join is the disjunction of both states.
func (domain) Join(s1, s2 cpa.AbstractState) (cpa.AbstractState, error) {
	p1, p2, err := unpack(s1, s2)
	if err != nil {
		return nil, err
	}
	if p1.node != p2.node {
		return nil, cpa.InvariantViolation("joining states at %v and %v", p1.node, p2.node)
	}
	if implies(p1.formula, p2.formula) {
		return p2, nil
	}
	return &State{node: p2.node, visits: p2.visits, formula: cfa.Disj(p1.formula, p2.formula)}, nil
}

// LessOrEqual holds if s1 is at the location of s2 and entails it.
func (domain) LessOrEqual(s1, s2 cpa.AbstractState) (bool, error) {
	p1, p2, err := unpack(s1, s2)
	if err != nil {
		return false, err
	}
	return p1.node == p2.node && implies(p1.formula, p2.formula), nil
}

type transfer struct{}

func (transfer) SuccessorsForEdge(_ context.Context, s cpa.AbstractState, p cpa.Precision, edge *cfa.Edge) ([]cpa.AbstractState, error) {
	st, ok := s.(*State)
	if !ok {
		return nil, cpa.InvariantViolation("%T is not a predicate state", s)
	}
	if edge.From != st.node {
		return nil, cpa.InvariantViolation("edge %v does not leave %v", edge, st.node)
	}
	prec, ok := p.(*Precision)
	if !ok || prec == nil {
		prec = Empty()
	}

	next := post(st.Abstract(prec), edge)
	if edge.Kind == cfa.Assume && !isSatisfiable(next) {
		return nil, nil
	}

	visits, _ := st.visits.Get(edge.To)
	return []cpa.AbstractState{&State{
		node:    edge.To,
		visits:  st.visits.Set(edge.To, visits+1),
		formula: next,
	}}, nil
}
