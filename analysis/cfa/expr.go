package cfa

import (
	"fmt"
	"strings"
)

// Expr is a boolean expression over program variables.
type Expr interface {
	fmt.Stringer
	// Eval evaluates the expression under a partial valuation. The second
	// result is false if the value depends on an unknown variable.
	Eval(val func(name string) (value, known bool)) (value, known bool)
	// collect appends the variables of the expression to vs.
	collect(vs []string) []string
}

type (
	Var   struct{ Name string }
	Const struct{ Value bool }
	Not   struct{ X Expr }
	And   struct{ X, Y Expr }
	Or    struct{ X, Y Expr }
	Iff   struct{ X, Y Expr }
)

var (
	True  = Const{true}
	False = Const{false}
)

// Vars lists the variables occurring in e, in order of first occurrence.
func Vars(e Expr) []string {
	if e == nil {
		return nil
	}
	all := e.collect(nil)
	seen := make(map[string]bool, len(all))
	res := all[:0]
	for _, v := range all {
		if !seen[v] {
			seen[v] = true
			res = append(res, v)
		}
	}
	return res
}

func (v Var) Eval(val func(string) (bool, bool)) (bool, bool) { return val(v.Name) }
func (v Var) String() string                                  { return v.Name }
func (v Var) collect(vs []string) []string                    { return append(vs, v.Name) }

func (c Const) Eval(func(string) (bool, bool)) (bool, bool) { return c.Value, true }
func (c Const) String() string                              { return fmt.Sprint(c.Value) }
func (c Const) collect(vs []string) []string                { return vs }

func (n Not) Eval(val func(string) (bool, bool)) (bool, bool) {
	x, ok := n.X.Eval(val)
	return !x, ok
}
func (n Not) String() string               { return "!" + paren(n.X) }
func (n Not) collect(vs []string) []string { return n.X.collect(vs) }

func (a And) Eval(val func(string) (bool, bool)) (bool, bool) {
	x, xok := a.X.Eval(val)
	y, yok := a.Y.Eval(val)
	switch {
	case xok && !x, yok && !y:
		return false, true
	case xok && yok:
		return true, true
	}
	return false, false
}
func (a And) String() string               { return paren(a.X) + " && " + paren(a.Y) }
func (a And) collect(vs []string) []string { return a.Y.collect(a.X.collect(vs)) }

func (o Or) Eval(val func(string) (bool, bool)) (bool, bool) {
	x, xok := o.X.Eval(val)
	y, yok := o.Y.Eval(val)
	switch {
	case xok && x, yok && y:
		return true, true
	case xok && yok:
		return false, true
	}
	return false, false
}
func (o Or) String() string               { return paren(o.X) + " || " + paren(o.Y) }
func (o Or) collect(vs []string) []string { return o.Y.collect(o.X.collect(vs)) }

func (i Iff) Eval(val func(string) (bool, bool)) (bool, bool) {
	x, xok := i.X.Eval(val)
	y, yok := i.Y.Eval(val)
	return x == y, xok && yok
}
func (i Iff) String() string               { return paren(i.X) + " == " + paren(i.Y) }
func (i Iff) collect(vs []string) []string { return i.Y.collect(i.X.collect(vs)) }

func paren(e Expr) string {
	switch e.(type) {
	case Var, Const, Not:
		return e.String()
	}
	return "(" + e.String() + ")"
}

// Literal decomposes e into a variable and its polarity, if e is a variable
// or a negated variable.
func Literal(e Expr) (name string, positive bool, ok bool) {
	positive = true
	for {
		switch x := e.(type) {
		case Var:
			return x.Name, positive, true
		case Not:
			positive = !positive
			e = x.X
		default:
			return "", false, false
		}
	}
}

// QualifiedName builds the name of a variable local to function fn.
func QualifiedName(fn, name string) string {
	return fn + "::" + name
}

// SplitName splits a qualified variable name into function and local name.
// Global variables have an empty function.
func SplitName(name string) (fn, local string) {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[:i], name[i+2:]
	}
	return "", name
}

// Negate builds !e, folding constants and double negation.
func Negate(e Expr) Expr {
	switch x := e.(type) {
	case Const:
		return Const{!x.Value}
	case Not:
		return x.X
	}
	return Not{e}
}

// Conj builds the conjunction of es. The empty conjunction is true.
func Conj(es ...Expr) Expr {
	var res Expr
	for _, e := range es {
		switch {
		case e == False:
			return False
		case e == True:
			continue
		case res == nil:
			res = e
		default:
			res = And{res, e}
		}
	}
	if res == nil {
		return True
	}
	return res
}

// Disj builds the disjunction of es. The empty disjunction is false.
func Disj(es ...Expr) Expr {
	var res Expr
	for _, e := range es {
		switch {
		case e == True:
			return True
		case e == False:
			continue
		case res == nil:
			res = e
		default:
			res = Or{res, e}
		}
	}
	if res == nil {
		return False
	}
	return res
}

// Equiv builds x == y, folding constants.
func Equiv(x, y Expr) Expr {
	switch {
	case x == True:
		return y
	case y == True:
		return x
	case x == False:
		return Negate(y)
	case y == False:
		return Negate(x)
	}
	return Iff{x, y}
}

// Conjuncts splits nested conjunctions of e.
func Conjuncts(e Expr) []Expr {
	if a, ok := e.(And); ok {
		return append(Conjuncts(a.X), Conjuncts(a.Y)...)
	}
	return []Expr{e}
}

// Substitute replaces the variable name by x in e, folding constants.
func Substitute(e Expr, name string, x Expr) Expr {
	switch e := e.(type) {
	case Var:
		if e.Name == name {
			return x
		}
	case Not:
		return Negate(Substitute(e.X, name, x))
	case And:
		return Conj(Substitute(e.X, name, x), Substitute(e.Y, name, x))
	case Or:
		return Disj(Substitute(e.X, name, x), Substitute(e.Y, name, x))
	case Iff:
		return Equiv(Substitute(e.X, name, x), Substitute(e.Y, name, x))
	}
	return e
}

// Mentions reports whether the variable name occurs in e.
func Mentions(e Expr, name string) bool {
	for _, v := range Vars(e) {
		if v == name {
			return true
		}
	}
	return false
}
