// Package testtarget implements the analysis that marks the crossing of a
// coverage goal edge as a target, and the writer for the generated test
// cases.
package testtarget

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
)

// CoverageProperty is violated by states that cover a goal.
const CoverageProperty cpa.Property = "coverage"

// Goals is the set of outstanding goal edges. It is shared between the
// analysis, which stops reporting covered goals, and the test generator,
// which removes them.
type Goals struct {
	edges map[*cfa.Edge]bool
}

func NewGoals(edges ...*cfa.Edge) *Goals {
	g := &Goals{edges: make(map[*cfa.Edge]bool, len(edges))}
	for _, e := range edges {
		g.edges[e] = true
	}
	return g
}

// Selection of goal edges.
type Selection string

const (
	// Every branch outcome.
	Branches Selection = "branches"
	// Every edge entering an error location.
	ErrorCalls Selection = "errors"
)

// Select the goals of c.
func Select(c *cfa.CFA, sel Selection) (*Goals, error) {
	var edges []*cfa.Edge
	for _, e := range c.Edges {
		switch sel {
		case Branches:
			if e.Kind == cfa.Assume {
				edges = append(edges, e)
			}
		case ErrorCalls:
			if e.To.IsError() {
				edges = append(edges, e)
			}
		default:
			return nil, errors.Wrapf(cpa.ErrInvalidConfiguration, "unknown goal selection %q", sel)
		}
	}
	return NewGoals(edges...), nil
}

func (g *Goals) Contains(e *cfa.Edge) bool { return g.edges[e] }
func (g *Goals) Remove(e *cfa.Edge)        { delete(g.edges, e) }
func (g *Goals) Len() int                  { return len(g.edges) }

// Edges lists the outstanding goals by edge ID.
func (g *Goals) Edges() []*cfa.Edge {
	res := make([]*cfa.Edge, 0, len(g.edges))
	for e := range g.edges {
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// State records whether the last edge was an outstanding goal.
type State struct {
	Goal *cfa.Edge
}

func (s State) IsTarget() bool { return s.Goal != nil }

func (s State) ViolatedProperties() []cpa.Property {
	if s.IsTarget() {
		return []cpa.Property{CoverageProperty}
	}
	return nil
}

func (s State) String() string {
	if s.Goal != nil {
		return fmt.Sprintf("goal(%v)", s.Goal)
	}
	return "-"
}

type Precision struct{}

// CPA marks successors along outstanding goals as targets.
type CPA struct {
	Goals *Goals
}

var _ cpa.CPA = (*CPA)(nil)

func (c *CPA) Domain() cpa.AbstractDomain                   { return domain{} }
func (c *CPA) Transfer() cpa.TransferRelation               { return c }
func (c *CPA) Merge() cpa.MergeOperator                     { return cpa.MergeSep{} }
func (c *CPA) Stop() cpa.StopOperator                       { return cpa.StopSep{Domain: domain{}} }
func (c *CPA) PrecisionAdjustment() cpa.PrecisionAdjustment { return cpa.StaticPrecisionAdjustment{} }
func (c *CPA) InitialState(*cfa.Node) cpa.AbstractState     { return State{} }
func (c *CPA) InitialPrecision(*cfa.Node) cpa.Precision     { return Precision{} }

func (c *CPA) SuccessorsForEdge(_ context.Context, _ cpa.AbstractState, _ cpa.Precision, edge *cfa.Edge) ([]cpa.AbstractState, error) {
	if c.Goals.Contains(edge) {
		return []cpa.AbstractState{State{Goal: edge}}, nil
	}
	return []cpa.AbstractState{State{}}, nil
}

type domain struct{}

func (domain) Join(s1, s2 cpa.AbstractState) (cpa.AbstractState, error) {
	if s1.(State) != s2.(State) {
		return State{}, nil
	}
	return s2, nil
}

// LessOrEqual is flat.
func (domain) LessOrEqual(s1, s2 cpa.AbstractState) (bool, error) {
	return s1.(State) == s2.(State), nil
}
