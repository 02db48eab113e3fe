package predicate

import (
	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"

	"github.com/cs-au-dk/reach/analysis/cfa"
)

const (
	satisfiable   = 1
	unsatisfiable = -1
)

// encode builds the circuit of e. Variables are resolved by lookup.
func encode(c *logic.C, e cfa.Expr, lookup func(string) z.Lit) z.Lit {
	switch e := e.(type) {
	case cfa.Var:
		return lookup(e.Name)
	case cfa.Const:
		if e.Value {
			return c.T
		}
		return c.F
	case cfa.Not:
		return encode(c, e.X, lookup).Not()
	case cfa.And:
		return c.And(encode(c, e.X, lookup), encode(c, e.Y, lookup))
	case cfa.Or:
		return c.Or(encode(c, e.X, lookup), encode(c, e.Y, lookup))
	case cfa.Iff:
		x, y := encode(c, e.X, lookup), encode(c, e.Y, lookup)
		return c.Or(c.And(x, y), c.And(x.Not(), y.Not()))
	}
	// Unknown expressions are unconstrained.
	return c.Lit()
}

// query is a satisfiability problem over formulas sharing one set of
// program variables.
type query struct {
	c    *logic.C
	vars map[string]z.Lit
	g    *gini.Gini
}

func newQuery() *query {
	return &query{c: logic.NewC(), vars: map[string]z.Lit{}}
}

func (q *query) lookup(name string) z.Lit {
	m, ok := q.vars[name]
	if !ok {
		m = q.c.Lit()
		q.vars[name] = m
	}
	return m
}

func (q *query) encode(e cfa.Expr) z.Lit { return encode(q.c, e, q.lookup) }

// solver translates the circuit built so far.
func (q *query) solver() *gini.Gini {
	q.g = gini.New()
	q.c.ToCnf(q.g)
	return q.g
}

// possible reports whether all of ms can hold at once.
func (q *query) possible(ms ...z.Lit) bool {
	q.g.Assume(ms...)
	return q.g.Solve() != unsatisfiable
}

func isSatisfiable(e cfa.Expr) bool {
	if c, ok := e.(cfa.Const); ok {
		return c.Value
	}
	q := newQuery()
	root := q.encode(e)
	q.solver()
	return q.possible(root)
}

// implies decides a => b.
func implies(a, b cfa.Expr) bool {
	switch {
	case a == cfa.False, b == cfa.True:
		return true
	case a.String() == b.String():
		return true
	}
	q := newQuery()
	x, y := q.encode(a), q.encode(b)
	q.solver()
	return !q.possible(x, y.Not())
}

// abstraction is the conjunction of the predicates e decides, each either
// itself or negated. The formula e must be satisfiable.
func abstraction(e cfa.Expr, preds []Predicate) cfa.Expr {
	var decidable []Predicate
	for _, p := range preds {
		if _, ok := p.Formula.(cfa.Const); !ok {
			decidable = append(decidable, p)
		}
	}
	if len(decidable) == 0 {
		return cfa.True
	}

	q := newQuery()
	root := q.encode(e)
	lits := make([]z.Lit, len(decidable))
	for i, p := range decidable {
		lits[i] = q.encode(p.Formula)
	}
	q.solver()

	var conj []cfa.Expr
	for i, p := range decidable {
		switch {
		case !q.possible(root, lits[i].Not()):
			conj = append(conj, p.Formula)
		case !q.possible(root, lits[i]):
			conj = append(conj, cfa.Negate(p.Formula))
		}
	}
	return cfa.Conj(conj...)
}

// post is the strongest postcondition of e through the edge. Overwritten
// variables are eliminated by expanding both of their old values.
func post(e cfa.Expr, edge *cfa.Edge) cfa.Expr {
	switch edge.Kind {
	case cfa.Assume:
		return cfa.Conj(e, edge.Condition())
	case cfa.Assign:
		x := cfa.Var{Name: edge.Var}
		if !cfa.Mentions(e, x.Name) && !cfa.Mentions(edge.Expr, x.Name) {
			return cfa.Conj(e, cfa.Equiv(x, edge.Expr))
		}
		old := func(v cfa.Const) cfa.Expr {
			return cfa.Conj(
				cfa.Substitute(e, x.Name, v),
				cfa.Equiv(x, cfa.Substitute(edge.Expr, x.Name, v)))
		}
		return cfa.Disj(old(cfa.True), old(cfa.False))
	case cfa.Havoc:
		if !cfa.Mentions(e, edge.Var) {
			return e
		}
		return cfa.Disj(cfa.Substitute(e, edge.Var, cfa.True), cfa.Substitute(e, edge.Var, cfa.False))
	}
	return e
}

// cube assigns each of a list of variables high, low or free.
type cube []byte

const (
	low byte = iota
	high
	free
)

// merge combines two cubes that differ in the value of exactly one variable.
func merge(a, b cube) (cube, bool) {
	diff := -1
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		if diff >= 0 || a[i] == free || b[i] == free {
			return nil, false
		}
		diff = i
	}
	if diff < 0 {
		return nil, false
	}
	res := append(cube(nil), a...)
	res[diff] = free
	return res, true
}

// subsumes reports whether every assignment of b is one of a.
func (a cube) subsumes(b cube) bool {
	for i := range a {
		if a[i] != free && a[i] != b[i] {
			return false
		}
	}
	return true
}

func (a cube) key() string { return string(a) }

// minimise merges cubes pairwise until no pair combines, then drops cubes
// subsumed by others.
func minimise(cs []cube) []cube {
	for merged := true; merged; {
		merged = false
		var next []cube
		used := make([]bool, len(cs))
		seen := map[string]bool{}
		add := func(c cube) {
			if !seen[c.key()] {
				seen[c.key()] = true
				next = append(next, c)
			}
		}
		for i := range cs {
			for j := i + 1; j < len(cs); j++ {
				if m, ok := merge(cs[i], cs[j]); ok {
					used[i], used[j] = true, true
					merged = true
					add(m)
				}
			}
		}
		for i, c := range cs {
			if !used[i] {
				add(c)
			}
		}
		cs = next
	}

	var res []cube
	for i, c := range cs {
		subsumed := false
		for j, o := range cs {
			if i != j && o.subsumes(c) && (!c.subsumes(o) || j < i) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			res = append(res, c)
		}
	}
	return res
}

// dnf builds the disjunction of the cubes over the named variables. Two
// cubes that fix the same pair of variables to opposite values become an
// equivalence.
func dnf(names []string, cs []cube) cfa.Expr {
	lit := func(i int, v byte) cfa.Expr {
		x := cfa.Var{Name: names[i]}
		if v == low {
			return cfa.Negate(x)
		}
		return x
	}
	if len(cs) == 2 {
		if i, j, ok := pair(cs[0]); ok {
			if i2, j2, ok := pair(cs[1]); ok && i == i2 && j == j2 &&
				cs[0][i] != cs[1][i] && cs[0][j] != cs[1][j] {
				e := cfa.Expr(cfa.Iff{X: cfa.Var{Name: names[i]}, Y: cfa.Var{Name: names[j]}})
				if cs[0][i] != cs[0][j] {
					e = cfa.Negate(e)
				}
				return e
			}
		}
	}

	disj := make([]cfa.Expr, len(cs))
	for k, c := range cs {
		var conj []cfa.Expr
		for i, v := range c {
			if v != free {
				conj = append(conj, lit(i, v))
			}
		}
		disj[k] = cfa.Conj(conj...)
	}
	return cfa.Disj(disj...)
}

// pair finds the two variables a cube fixes, if it fixes exactly two.
func pair(c cube) (int, int, bool) {
	var fixed []int
	for i, v := range c {
		if v != free {
			fixed = append(fixed, i)
		}
	}
	if len(fixed) != 2 {
		return 0, 0, false
	}
	return fixed[0], fixed[1], true
}
