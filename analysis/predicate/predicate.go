// Package predicate implements predicate abstraction over boolean formulas
// on the variables of a control-flow automaton, together with a SAT-based path
// oracle and the refinement strategy that grows the predicate precision
// along spurious error paths.
package predicate

import (
	"cmp"
	"fmt"
	"sort"
	"strings"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/refinement"
	"github.com/cs-au-dk/reach/utils"
)

// Predicate is a boolean formula over program variables whose truth value
// the abstraction decides. The predicate false marks unreachable location
// instances.
type Predicate struct {
	Formula cfa.Expr
}

var FalsePredicate = Predicate{cfa.False}

// Atom is the predicate of a single variable.
func Atom(v string) Predicate { return Predicate{cfa.Var{Name: v}} }

func (p Predicate) String() string {
	if p.Formula == nil {
		return "true"
	}
	return p.Formula.String()
}

func (p Predicate) IsFalse() bool { return p.Formula == cfa.False }

// Scoped reports whether the predicate mentions a function-local variable.
func (p Predicate) Scoped() bool {
	return strings.Contains(p.String(), "::")
}

func (p Predicate) Hash() uint32 {
	return utils.StringHasher{}.Hash(p.String())
}

func (p Predicate) Equal(o Predicate) bool { return p.String() == o.String() }

// comparePredicates orders false first, then by the printed formula.
func comparePredicates(a, b Predicate) int {
	if a.IsFalse() != b.IsFalse() {
		if a.IsFalse() {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.String(), b.String())
}

type predicateComparer struct{}

func (predicateComparer) Compare(a, b Predicate) int { return comparePredicates(a, b) }

// FromInterpolant splits an interpolant into its conjuncts. A negated
// conjunct yields the predicate it negates, since the abstraction tracks
// both truth values. The false interpolant yields the false predicate.
func FromInterpolant(itp refinement.Interpolant) []Predicate {
	switch {
	case itp.IsFalse():
		return []Predicate{FalsePredicate}
	case itp.IsTrue():
		return nil
	}
	seen := map[string]bool{}
	var res []Predicate
	for _, c := range cfa.Conjuncts(itp.Formula) {
		for {
			n, ok := c.(cfa.Not)
			if !ok {
				break
			}
			c = n.X
		}
		if _, ok := c.(cfa.Const); ok {
			continue
		}
		if p := (Predicate{c}); !seen[p.String()] {
			seen[p.String()] = true
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return comparePredicates(res[i], res[j]) < 0 })
	return res
}

// LocationInstance is the n-th visit of a location along a path, counting
// from zero.
type LocationInstance struct {
	Node     *cfa.Node
	Instance int
}

func (l LocationInstance) Function() string { return l.Node.Function }

func (l LocationInstance) Hash() uint32 {
	return utils.HashCombine(nodeHasher{}.Hash(l.Node), uint32(l.Instance))
}

func (l LocationInstance) Equal(o LocationInstance) bool { return l == o }

func (l LocationInstance) String() string {
	return fmt.Sprintf("%v#%d", l.Node, l.Instance)
}

// nodeHasher hashes locations by identity.
type nodeHasher struct{}

func (nodeHasher) Hash(n *cfa.Node) uint32 {
	return utils.HashCombine(utils.StringHasher{}.Hash(n.Function), uint32(n.ID))
}

func (nodeHasher) Equal(a, b *cfa.Node) bool { return a == b }
