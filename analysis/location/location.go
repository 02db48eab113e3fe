// Package location implements the analysis that tracks nothing but the
// program location. It is the backbone of composite analyses: it provides the
// location, the partition key and the error-location targets.
package location

import (
	"context"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/utils"
)

// State is a program location.
type State struct {
	Node *cfa.Node

	ignoreErrors bool
	only         cfa.Property
}

func (s State) Location() *cfa.Node { return s.Node }
func (s State) IsTarget() bool {
	return !s.ignoreErrors && s.Node.IsError() && (s.only == "" || s.only == s.Node.Property)
}
func (s State) PartitionKey() any   { return s.Node.ID }

func (s State) ViolatedProperties() []cpa.Property {
	if s.IsTarget() {
		return []cpa.Property{s.Node.Property}
	}
	return nil
}

func (s State) String() string {
	if s.IsTarget() {
		return utils.ErrorColor(s.Node)
	}
	return utils.NodeColor(s.Node)
}

// Precision of the location analysis carries no information.
type Precision struct{}

type CPA struct {
	// IgnoreErrors stops error locations from being targets, for analyses
	// whose targets come from elsewhere.
	IgnoreErrors bool
	// Property restricts the targets to the error locations of one property.
	Property cfa.Property
}

var _ cpa.CPA = CPA{}

func (CPA) Domain() cpa.AbstractDomain                   { return domain{} }
func (c CPA) Transfer() cpa.TransferRelation             { return transfer(c) }
func (CPA) Merge() cpa.MergeOperator                     { return cpa.MergeSep{} }
func (CPA) Stop() cpa.StopOperator                       { return cpa.StopSep{Domain: domain{}} }
func (CPA) PrecisionAdjustment() cpa.PrecisionAdjustment { return cpa.StaticPrecisionAdjustment{} }
func (c CPA) InitialState(node *cfa.Node) cpa.AbstractState {
	return State{Node: node, ignoreErrors: c.IgnoreErrors, only: c.Property}
}
func (CPA) InitialPrecision(*cfa.Node) cpa.Precision { return Precision{} }

// The domain is flat: locations are only ordered with themselves.
type domain struct{}

func (domain) Join(s1, s2 cpa.AbstractState) (cpa.AbstractState, error) {
	if s1.(State) != s2.(State) {
		return nil, cpa.InvariantViolation("joining locations %v and %v", s1, s2)
	}
	return s2, nil
}

func (domain) LessOrEqual(s1, s2 cpa.AbstractState) (bool, error) {
	return s1.(State) == s2.(State), nil
}

type transfer CPA

func (t transfer) SuccessorsForEdge(_ context.Context, s cpa.AbstractState, _ cpa.Precision, edge *cfa.Edge) ([]cpa.AbstractState, error) {
	st := s.(State)
	if edge.From != st.Node {
		return nil, cpa.InvariantViolation("edge %v does not leave %v", edge, st.Node)
	}
	return []cpa.AbstractState{State{Node: edge.To, ignoreErrors: t.IgnoreErrors, only: t.Property}}, nil
}
