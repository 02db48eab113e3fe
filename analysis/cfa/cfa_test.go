package cfa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func valuation(m map[string]bool) func(string) (bool, bool) {
	return func(name string) (bool, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func TestEvalThreeValued(t *testing.T) {
	x, y := Var{"x"}, Var{"y"}
	val := valuation(map[string]bool{"x": false})

	tests := []struct {
		e            Expr
		value, known bool
	}{
		{x, false, true},
		{y, false, false},
		{Not{x}, true, true},
		{And{x, y}, false, true},
		{And{Not{x}, y}, false, false},
		{Or{Not{x}, y}, true, true},
		{Or{x, y}, false, false},
		{Iff{x, False}, true, true},
		{Iff{x, y}, false, false},
	}

	for _, test := range tests {
		t.Run(test.e.String(), func(t *testing.T) {
			v, ok := test.e.Eval(val)
			require.Equal(t, test.known, ok)
			if ok {
				require.Equal(t, test.value, v)
			}
		})
	}
}

func TestVarsAndLiterals(t *testing.T) {
	e := Or{And{Var{"a"}, Not{Var{"b"}}}, Iff{Var{"a"}, Var{"c"}}}
	require.Equal(t, []string{"a", "b", "c"}, Vars(e))
	require.Equal(t, "(a && !b) || (a == c)", e.String())

	name, pos, ok := Literal(Not{Not{Not{Var{"v"}}}})
	require.True(t, ok)
	require.Equal(t, "v", name)
	require.False(t, pos)

	_, _, ok = Literal(And{Var{"a"}, Var{"b"}})
	require.False(t, ok)

	fn, local := SplitName(QualifiedName("main", "t0"))
	require.Equal(t, "main", fn)
	require.Equal(t, "t0", local)
	fn, local = SplitName("g")
	require.Empty(t, fn)
	require.Equal(t, "g", local)
}

func TestConstructorsFold(t *testing.T) {
	x, y := Var{"x"}, Var{"y"}

	require.Equal(t, True, Conj())
	require.Equal(t, False, Disj())
	require.Equal(t, x, Conj(True, x))
	require.Equal(t, False, Conj(x, False, y))
	require.Equal(t, Expr(And{x, y}), Conj(x, y))
	require.Equal(t, True, Disj(x, True))
	require.Equal(t, x, Negate(Not{x}))
	require.Equal(t, Expr(Not{y}), Equiv(False, y))
	require.Equal(t, []Expr{x, Not{y}, x}, Conjuncts(Conj(x, Not{y}, x)))
}

func TestSubstitute(t *testing.T) {
	x, y := Var{"x"}, Var{"y"}
	e := And{Iff{x, y}, Or{Not{x}, y}}

	require.Equal(t, Expr(And{y, y}), Substitute(e, "x", True))
	require.Equal(t, Expr(Not{y}), Substitute(e, "x", False))
	require.Equal(t, e, Substitute(e, "z", True))
	require.True(t, Mentions(e, "y"))
	require.False(t, Mentions(e, "z"))
}

func TestBuilder(t *testing.T) {
	b := NewBuilder("f")
	entry, loop, body, exit := b.Node("entry"), b.Node("loop"), b.Node("body"), b.Node("exit")
	b.Havoc(entry, loop, "x", true)
	b.Branch(loop, Var{"x"}, body, exit)
	b.Assign(body, loop, "x", Not{Var{"x"}})
	fail := b.Fail(body, "assert")
	require.Same(t, fail.To, b.ErrorNode("assert"))

	c, err := b.Build(entry, exit)
	require.NoError(t, err)

	require.Len(t, c.Nodes, 5)
	require.Len(t, loop.Leaving(), 2)
	require.Len(t, loop.Entering(), 2)
	require.Equal(t, []Property{"assert"}, c.Properties())
	require.Equal(t, []string{"x"}, c.Variables())

	require.Equal(t, 0, c.Priority(entry))
	require.Equal(t, c.Priority(loop), c.Priority(body))
	require.Less(t, c.Priority(entry), c.Priority(loop))
	require.Less(t, c.Priority(loop), c.Priority(exit))
	require.Less(t, c.Priority(loop), c.Priority(fail.To))

	require.Equal(t, "N1 -{[!x]}-> N3", loop.Leaving()[1].String())
	require.Equal(t, Not{Var{"x"}}, loop.Leaving()[1].Condition())
}

func TestBuildRejectsBrokenAutomata(t *testing.T) {
	b := NewBuilder("f")
	n := b.Node("")
	b.Assume(n, b.Node(""), nil, true)
	_, err := b.Build(n, nil)
	require.Error(t, err)

	b = NewBuilder("g")
	n = b.Node("")
	e := b.Fail(n, "p")
	b.Blank(e.To, n, "")
	_, err = b.Build(n, nil)
	require.Error(t, err)
}

func TestToDot(t *testing.T) {
	b := NewBuilder("f")
	entry, exit := b.Node("entry"), b.Node("exit")
	b.Assume(entry, exit, Var{"x"}, true)
	b.Fail(entry, "p")
	c, err := b.Build(entry, exit)
	require.NoError(t, err)

	dg := c.ToDot()
	require.Equal(t, 3, dg.CountNodes())
	require.Len(t, dg.Edges, 2)

	out, err := dg.Bytes()
	require.NoError(t, err)
	require.Contains(t, string(out), `"N0" -> "N1" [ label="[x]"; ]`)
	require.Contains(t, string(out), `fillcolor="tomato";`)
}
