package cfa

import (
	"testing"

	"github.com/cs-au-dk/reach/pkgutil"
	"github.com/stretchr/testify/require"
)

var testOptions = Options{
	ErrorFunctions:  []string{"reach_error"},
	NondetFunctions: []string{"nondet"},
	CheckPanics:     true,
}

func translate(t *testing.T, src string) *CFA {
	t.Helper()
	pkgs, err := pkgutil.LoadPackagesFromSource(src)
	require.NoError(t, err)
	_, ssaPkgs := pkgutil.BuildSSA(pkgs)
	fn, err := pkgutil.FindFunction(ssaPkgs, "main")
	require.NoError(t, err)

	c, err := FromSSA(fn, testOptions)
	require.NoError(t, err)
	return c
}

func edgesOfKind(c *CFA, kind EdgeKind) (res []*Edge) {
	for _, e := range c.Edges {
		if e.Kind == kind {
			res = append(res, e)
		}
	}
	return
}

func TestFromSSAStraightLine(t *testing.T) {
	c := translate(t, `package main
	func nondet() bool { return false }
	func reach_error() {}
	func main() {
		x := nondet()
		y := !x
		if x == y {
			reach_error()
		}
	}`)

	havocs := edgesOfKind(c, Havoc)
	require.Len(t, havocs, 1)
	require.True(t, havocs[0].Exact)

	assigns := edgesOfKind(c, Assign)
	require.Len(t, assigns, 2)
	require.Equal(t, Not{Var{havocs[0].Var}}, assigns[0].Expr)
	require.IsType(t, Iff{}, assigns[1].Expr)

	require.Len(t, edgesOfKind(c, Assume), 2)
	require.Len(t, edgesOfKind(c, Error), 1)
	require.Len(t, edgesOfKind(c, Return), 1)
	require.Equal(t, []Property{"reach_error"}, c.Properties())

	fn, _ := SplitName(havocs[0].Var)
	require.Equal(t, "main", fn)
	require.Equal(t, 0, c.Priority(c.Entry))
}

func TestFromSSAPhis(t *testing.T) {
	c := translate(t, `package main
	func nondet() bool { return false }
	func reach_error() {}
	func main() {
		a := nondet()
		b := false
		if a {
			b = true
		}
		if !b {
			reach_error()
		}
	}`)

	var consts []bool
	for _, e := range edgesOfKind(c, Assign) {
		if k, ok := e.Expr.(Const); ok {
			consts = append(consts, k.Value)
		}
	}
	require.ElementsMatch(t, []bool{false, true}, consts)
}

func TestFromSSAPanicsAndOpaqueValues(t *testing.T) {
	c := translate(t, `package main
	func opaque(i int) bool { return i > 0 }
	func main() {
		if opaque(3) {
			panic("boom")
		}
	}`)

	havocs := edgesOfKind(c, Havoc)
	require.Len(t, havocs, 1)
	require.False(t, havocs[0].Exact)
	require.Equal(t, []Property{PanicProperty}, c.Properties())
}
