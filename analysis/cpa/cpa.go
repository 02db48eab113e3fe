// Package cpa defines configurable program analyses: an abstract domain
// together with the transfer relation, merge, stop and precision adjustment
// operators the reachability engine composes.
package cpa

import (
	"context"
	"reflect"

	"github.com/cs-au-dk/reach/analysis/cfa"
)

type (
	// AbstractState over-approximates a set of concrete configurations at a
	// program location. States are immutable once handed to the engine and
	// must be comparable with ==, which is how no-op merges are detected.
	// Implementations therefore use pointers or small value structs.
	AbstractState any

	// Precision controls how coarse the abstraction of a state is.
	Precision any

	// Property re-exported for convenience.
	Property = cfa.Property
)

// Targetable states may witness property violations.
type Targetable interface {
	IsTarget() bool
	ViolatedProperties() []Property
}

// LocationState is implemented by states that know their program location.
type LocationState interface {
	Location() *cfa.Node
}

// Partitionable states provide the key under which the reached set groups
// them for merge and stop.
type Partitionable interface {
	PartitionKey() any
}

type AbstractDomain interface {
	Join(s1, s2 AbstractState) (AbstractState, error)
	LessOrEqual(s1, s2 AbstractState) (bool, error)
}

type TransferRelation interface {
	// SuccessorsForEdge computes the abstract successors of state along edge.
	// An empty result means the edge is infeasible from state.
	SuccessorsForEdge(ctx context.Context, state AbstractState, prec Precision, edge *cfa.Edge) ([]AbstractState, error)
}

type MergeOperator interface {
	// Merge combines s1 into s2. Returning s2 itself signals that nothing
	// was merged.
	Merge(s1, s2 AbstractState, prec Precision) (AbstractState, error)
}

type StopOperator interface {
	// Stop reports whether state is covered by the states of the partition.
	Stop(state AbstractState, partition []AbstractState, prec Precision) (bool, error)
}

type Action int

const (
	Continue Action = iota
	Break
)

func (a Action) String() string {
	if a == Break {
		return "BREAK"
	}
	return "CONTINUE"
}

type PrecResult struct {
	State     AbstractState
	Precision Precision
	Action    Action
}

type PrecisionAdjustment interface {
	Prec(state AbstractState, prec Precision, partition []AbstractState) (PrecResult, error)
}

// CPA bundles the operators of an analysis.
type CPA interface {
	Domain() AbstractDomain
	Transfer() TransferRelation
	Merge() MergeOperator
	Stop() StopOperator
	PrecisionAdjustment() PrecisionAdjustment
	InitialState(node *cfa.Node) AbstractState
	InitialPrecision(node *cfa.Node) Precision
}

// IsTarget checks whether s witnesses a property violation.
func IsTarget(s AbstractState) bool {
	t, ok := s.(Targetable)
	return ok && t.IsTarget()
}

// ViolatedProperties of s, or nil if s is not a target.
func ViolatedProperties(s AbstractState) []Property {
	if t, ok := s.(Targetable); ok && t.IsTarget() {
		return t.ViolatedProperties()
	}
	return nil
}

// Same reports whether a and b are the identical state. States whose dynamic
// type is not comparable are never the same.
func Same(a, b AbstractState) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	return a == b
}

// Location extracts the program location of s, if it has one.
func Location(s AbstractState) (*cfa.Node, bool) {
	if l, ok := s.(LocationState); ok {
		if n := l.Location(); n != nil {
			return n, true
		}
	}
	return nil, false
}
