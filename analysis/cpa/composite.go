package cpa

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/cs-au-dk/reach/analysis/cfa"
)

// CompositeState is the product of the states of several analyses.
type CompositeState struct {
	components []AbstractState
}

func NewCompositeState(components ...AbstractState) *CompositeState {
	return &CompositeState{components}
}

func (s *CompositeState) Components() []AbstractState {
	return s.components
}

func (s *CompositeState) Component(i int) AbstractState {
	return s.components[i]
}

func (s *CompositeState) Location() *cfa.Node {
	for _, c := range s.components {
		if n, ok := Location(c); ok {
			return n
		}
	}
	return nil
}

func (s *CompositeState) IsTarget() bool {
	for _, c := range s.components {
		if IsTarget(c) {
			return true
		}
	}
	return false
}

func (s *CompositeState) ViolatedProperties() (res []Property) {
	seen := map[Property]bool{}
	for _, c := range s.components {
		for _, p := range ViolatedProperties(c) {
			if !seen[p] {
				seen[p] = true
				res = append(res, p)
			}
		}
	}
	return
}

func (s *CompositeState) PartitionKey() any {
	for _, c := range s.components {
		if p, ok := c.(Partitionable); ok {
			return p.PartitionKey()
		}
	}
	return nil
}

func (s *CompositeState) String() string {
	strs := make([]string, len(s.components))
	for i, c := range s.components {
		strs[i] = fmt.Sprint(c)
	}
	return "(" + strings.Join(strs, ", ") + ")"
}

// CompositePrecision holds one precision per component analysis.
type CompositePrecision struct {
	components []Precision
}

func NewCompositePrecision(components ...Precision) *CompositePrecision {
	return &CompositePrecision{components}
}

func (p *CompositePrecision) Components() []Precision {
	return p.components
}

func (p *CompositePrecision) Component(i int) Precision {
	return p.components[i]
}

// With returns a copy of p in which component i is replaced.
func (p *CompositePrecision) With(i int, prec Precision) *CompositePrecision {
	cs := append([]Precision(nil), p.components...)
	cs[i] = prec
	return &CompositePrecision{cs}
}

// Composite runs several analyses in lockstep.
type Composite struct {
	cpas []CPA
}

func NewComposite(cpas ...CPA) *Composite {
	return &Composite{cpas}
}

// Components returns the component analyses.
func (c *Composite) Components() []CPA { return c.cpas }

// Find returns the index of the first component satisfying pred, or -1.
func (c *Composite) Find(pred func(CPA) bool) int {
	for i, sub := range c.cpas {
		if pred(sub) {
			return i
		}
	}
	return -1
}

func (c *Composite) Domain() AbstractDomain                   { return compositeDomain{c} }
func (c *Composite) Transfer() TransferRelation               { return compositeTransfer{c} }
func (c *Composite) Merge() MergeOperator                     { return compositeMerge{c} }
func (c *Composite) Stop() StopOperator                       { return compositeStop{c} }
func (c *Composite) PrecisionAdjustment() PrecisionAdjustment { return compositePrec{c} }

func (c *Composite) InitialState(node *cfa.Node) AbstractState {
	cs := make([]AbstractState, len(c.cpas))
	for i, sub := range c.cpas {
		cs[i] = sub.InitialState(node)
	}
	return NewCompositeState(cs...)
}

func (c *Composite) InitialPrecision(node *cfa.Node) Precision {
	ps := make([]Precision, len(c.cpas))
	for i, sub := range c.cpas {
		ps[i] = sub.InitialPrecision(node)
	}
	return NewCompositePrecision(ps...)
}

func (c *Composite) unpack(s AbstractState, p Precision) (*CompositeState, *CompositePrecision, error) {
	cs, ok := s.(*CompositeState)
	if !ok || len(cs.components) != len(c.cpas) {
		return nil, nil, errors.Wrapf(ErrInvalidConfiguration, "%T is not a state of the composite analysis", s)
	}
	if p == nil {
		return cs, nil, nil
	}
	cp, ok := p.(*CompositePrecision)
	if !ok || len(cp.components) != len(c.cpas) {
		return nil, nil, errors.Wrapf(ErrInvalidConfiguration, "%T is not a precision of the composite analysis", p)
	}
	return cs, cp, nil
}

func (c *Composite) precOf(p *CompositePrecision, i int) Precision {
	if p == nil {
		return nil
	}
	return p.components[i]
}

func column(partition []AbstractState, i int) []AbstractState {
	res := make([]AbstractState, 0, len(partition))
	for _, r := range partition {
		if cs, ok := r.(*CompositeState); ok {
			res = append(res, cs.components[i])
		}
	}
	return res
}

type compositeDomain struct{ c *Composite }

func (d compositeDomain) Join(s1, s2 AbstractState) (AbstractState, error) {
	c1, _, err := d.c.unpack(s1, nil)
	if err != nil {
		return nil, err
	}
	c2, _, err := d.c.unpack(s2, nil)
	if err != nil {
		return nil, err
	}
	cs := make([]AbstractState, len(d.c.cpas))
	for i, sub := range d.c.cpas {
		if cs[i], err = sub.Domain().Join(c1.components[i], c2.components[i]); err != nil {
			return nil, err
		}
	}
	return NewCompositeState(cs...), nil
}

func (d compositeDomain) LessOrEqual(s1, s2 AbstractState) (bool, error) {
	c1, _, err := d.c.unpack(s1, nil)
	if err != nil {
		return false, err
	}
	c2, _, err := d.c.unpack(s2, nil)
	if err != nil {
		return false, err
	}
	for i, sub := range d.c.cpas {
		if leq, err := sub.Domain().LessOrEqual(c1.components[i], c2.components[i]); err != nil || !leq {
			return false, err
		}
	}
	return true, nil
}

type compositeTransfer struct{ c *Composite }

func (t compositeTransfer) SuccessorsForEdge(ctx context.Context, s AbstractState, p Precision, edge *cfa.Edge) ([]AbstractState, error) {
	cs, cp, err := t.c.unpack(s, p)
	if err != nil {
		return nil, err
	}

	// Cartesian product of the component successors.
	product := [][]AbstractState{nil}
	for i, sub := range t.c.cpas {
		succs, err := sub.Transfer().SuccessorsForEdge(ctx, cs.components[i], t.c.precOf(cp, i), edge)
		if err != nil {
			return nil, err
		}
		if len(succs) == 0 {
			return nil, nil
		}

		next := make([][]AbstractState, 0, len(product)*len(succs))
		for _, prefix := range product {
			for _, succ := range succs {
				next = append(next, append(append([]AbstractState(nil), prefix...), succ))
			}
		}
		product = next
	}

	res := make([]AbstractState, len(product))
	for i, comps := range product {
		res[i] = NewCompositeState(comps...)
	}
	return res, nil
}

type compositeMerge struct{ c *Composite }

func (m compositeMerge) Merge(s1, s2 AbstractState, p Precision) (AbstractState, error) {
	c1, cp, err := m.c.unpack(s1, p)
	if err != nil {
		return nil, err
	}
	c2, _, err := m.c.unpack(s2, nil)
	if err != nil {
		return nil, err
	}

	changed := false
	cs := make([]AbstractState, len(m.c.cpas))
	for i, sub := range m.c.cpas {
		if cs[i], err = sub.Merge().Merge(c1.components[i], c2.components[i], m.c.precOf(cp, i)); err != nil {
			return nil, err
		}
		changed = changed || !Same(cs[i], c2.components[i])
	}
	if !changed {
		return s2, nil
	}
	return NewCompositeState(cs...), nil
}

type compositeStop struct{ c *Composite }

// Stop covers the state if a single state of the partition covers it in
// every component.
func (st compositeStop) Stop(s AbstractState, partition []AbstractState, p Precision) (bool, error) {
	cs, cp, err := st.c.unpack(s, p)
	if err != nil {
		return false, err
	}

next:
	for _, r := range partition {
		rs, _, err := st.c.unpack(r, nil)
		if err != nil {
			return false, err
		}
		for i, sub := range st.c.cpas {
			stop, err := sub.Stop().Stop(cs.components[i], []AbstractState{rs.components[i]}, st.c.precOf(cp, i))
			if err != nil {
				return false, err
			}
			if !stop {
				continue next
			}
		}
		return true, nil
	}
	return false, nil
}

type compositePrec struct{ c *Composite }

func (pa compositePrec) Prec(s AbstractState, p Precision, partition []AbstractState) (PrecResult, error) {
	cs, cp, err := pa.c.unpack(s, p)
	if err != nil {
		return PrecResult{}, err
	}

	states := make([]AbstractState, len(pa.c.cpas))
	precs := make([]Precision, len(pa.c.cpas))
	changed := false
	for i, sub := range pa.c.cpas {
		res, err := sub.PrecisionAdjustment().Prec(cs.components[i], pa.c.precOf(cp, i), column(partition, i))
		if err != nil {
			return PrecResult{}, err
		}
		if res.Action == Break {
			return PrecResult{State: s, Precision: p, Action: Break}, nil
		}
		states[i], precs[i] = res.State, res.Precision
		changed = changed || !Same(res.State, cs.components[i])
	}

	res := PrecResult{State: s, Precision: NewCompositePrecision(precs...), Action: Continue}
	if changed {
		res.State = NewCompositeState(states...)
	}
	return res, nil
}
