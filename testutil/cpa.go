package testutil

import (
	"context"
	"fmt"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
)

// State of the toy domain: a location and a set of facts. A state is below
// another if it has the same location and fewer facts.
type State struct {
	Node  *cfa.Node
	Facts uint64
}

func (s *State) Location() *cfa.Node { return s.Node }
func (s *State) IsTarget() bool      { return s.Node.IsError() }
func (s *State) PartitionKey() any   { return s.Node.ID }

func (s *State) ViolatedProperties() []cpa.Property {
	if s.IsTarget() {
		return []cpa.Property{s.Node.Property}
	}
	return nil
}

func (s *State) String() string {
	return fmt.Sprintf("N%d{%b}", s.Node.ID, s.Facts)
}

// Precision of the toy domain. Only its identity matters.
type Precision struct {
	Level int
}

// CPA is a configurable toy analysis. Edges generate facts; conditions are
// not interpreted, so every edge is feasible.
type CPA struct {
	// Facts added by crossing an edge, by edge ID.
	Gen map[int]uint64
	// Use MergeJoin instead of MergeSep.
	JoinMerge bool
	// Use StopJoin instead of StopSep.
	JoinStop bool
	// Edges whose transfer fails, by edge ID.
	Fail map[int]bool
	// Locations at which precision adjustment discards successors, by node ID.
	BreakAt map[int]bool
	// Called before every transfer.
	OnTransfer func(edge *cfa.Edge)

	Transfers int
}

var _ cpa.CPA = (*CPA)(nil)

func (c *CPA) Domain() cpa.AbstractDomain                   { return domain{} }
func (c *CPA) Transfer() cpa.TransferRelation               { return c }
func (c *CPA) PrecisionAdjustment() cpa.PrecisionAdjustment { return c }

func (c *CPA) Merge() cpa.MergeOperator {
	if c.JoinMerge {
		return cpa.MergeJoin{Domain: domain{}}
	}
	return cpa.MergeSep{}
}

func (c *CPA) Stop() cpa.StopOperator {
	if c.JoinStop {
		return cpa.StopJoin{Domain: domain{}}
	}
	return cpa.StopSep{Domain: domain{}}
}

func (c *CPA) InitialState(node *cfa.Node) cpa.AbstractState {
	return &State{Node: node}
}

func (c *CPA) InitialPrecision(*cfa.Node) cpa.Precision {
	return &Precision{}
}

func (c *CPA) SuccessorsForEdge(_ context.Context, s cpa.AbstractState, _ cpa.Precision, edge *cfa.Edge) ([]cpa.AbstractState, error) {
	c.Transfers++
	if c.OnTransfer != nil {
		c.OnTransfer(edge)
	}
	if c.Fail[edge.ID] {
		return nil, &cpa.TransferFailure{Edge: edge, Reason: "unsupported"}
	}

	st := s.(*State)
	if st.Node != edge.From {
		return nil, cpa.InvariantViolation("edge %v does not leave %v", edge, st)
	}
	return []cpa.AbstractState{&State{Node: edge.To, Facts: st.Facts | c.Gen[edge.ID]}}, nil
}

func (c *CPA) Prec(s cpa.AbstractState, p cpa.Precision, _ []cpa.AbstractState) (cpa.PrecResult, error) {
	action := cpa.Continue
	if c.BreakAt[s.(*State).Node.ID] {
		action = cpa.Break
	}
	return cpa.PrecResult{State: s, Precision: p, Action: action}, nil
}

type domain struct{}

func (domain) Join(s1, s2 cpa.AbstractState) (cpa.AbstractState, error) {
	a, b := s1.(*State), s2.(*State)
	if a.Node != b.Node {
		return nil, cpa.InvariantViolation("joining states at %v and %v", a.Node, b.Node)
	}
	return &State{Node: a.Node, Facts: a.Facts | b.Facts}, nil
}

func (domain) LessOrEqual(s1, s2 cpa.AbstractState) (bool, error) {
	a, b := s1.(*State), s2.(*State)
	return a.Node == b.Node && a.Facts&^b.Facts == 0, nil
}
