package testutil

import (
	"fmt"

	"github.com/cs-au-dk/reach/analysis/cfa"
)

// ErrorProperty is the property violated by the error locations of the
// automata in this file.
const ErrorProperty cfa.Property = "error"

func mustBuild(b *cfa.Builder, entry, exit *cfa.Node) *cfa.CFA {
	c, err := b.Build(entry, exit)
	if err != nil {
		panic(err)
	}
	return c
}

// Linear builds entry -> assign -> error, the error being reached by the
// second edge.
//
//	N0 -{x := true}-> N1 -{error}-> N2(error)
func Linear() *cfa.CFA {
	b := cfa.NewBuilder("linear")
	entry, mid := b.Node("entry"), b.Node("assign")
	b.Assign(entry, mid, "x", cfa.True)
	b.Fail(mid, ErrorProperty)
	return mustBuild(b, entry, nil)
}

// Diamond builds two paths joining at a common location before an exit.
//
//	N0 -{x := true}->  N1 -{}-> N3 -{}-> N4
//	N0 -{x := false}-> N2 -{}-> N3
func Diamond() *cfa.CFA {
	b := cfa.NewBuilder("diamond")
	entry, left, right, join, exit := b.Node("entry"), b.Node("left"), b.Node("right"), b.Node("join"), b.Node("exit")
	b.Assign(entry, left, "x", cfa.True)
	b.Assign(entry, right, "x", cfa.False)
	b.Blank(left, join, "")
	b.Blank(right, join, "")
	b.Blank(join, exit, "")
	return mustBuild(b, entry, exit)
}

// Chain builds a path of n edges whose last edge enters the error location.
// Every other edge is an assume on cond, or blank if cond is nil.
func Chain(n int, cond cfa.Expr) *cfa.CFA {
	b := cfa.NewBuilder("chain")
	entry := b.Node("p0")
	cur := entry
	for i := 1; i < n; i++ {
		next := b.Node(fmt.Sprintf("p%d", i))
		if cond != nil {
			b.Assume(cur, next, cond, true)
		} else {
			b.Blank(cur, next, "")
		}
		cur = next
	}
	b.Fail(cur, ErrorProperty)
	return mustBuild(b, entry, nil)
}

// Loop builds a counter loop that never reaches its error location, unless
// the toggle variable can be observed as both true and false.
//
//	N0 -{t := false}-> N1
//	N1 -{[c]}-> N2 -{t := !t}-> N1
//	N1 -{[!c]}-> N3 -{[t && !t]}-> N4 -{error}-> error
func Loop() *cfa.CFA {
	b := cfa.NewBuilder("loop")
	entry, head, body, after, check, exit := b.Node("entry"), b.Node("head"), b.Node("body"), b.Node("after"), b.Node("check"), b.Node("exit")
	t, c := cfa.Var{Name: "t"}, cfa.Var{Name: "c"}
	b.Assign(entry, head, "t", cfa.False)
	b.Assume(head, body, c, true)
	b.Assign(body, head, "t", cfa.Not{X: t})
	b.Assume(head, after, c, false)
	b.Assume(after, check, cfa.And{X: t, Y: cfa.Not{X: t}}, true)
	b.Assume(after, exit, cfa.And{X: t, Y: cfa.Not{X: t}}, false)
	b.Fail(check, ErrorProperty)
	return mustBuild(b, entry, exit)
}
