package cfa

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/ssa"
)

// PanicProperty is violated by reaching a call to panic.
const PanicProperty Property = "panic"

// Options control the translation of SSA functions.
type Options struct {
	// Calls to these functions violate a property named after the function.
	ErrorFunctions []string
	// Calls to these functions return an arbitrary input value.
	NondetFunctions []string
	// Report reachable panics as property violations.
	CheckPanics bool
}

// FromSSA translates a function into a boolean control-flow automaton.
// Only boolean values are modelled. Boolean results the translation cannot
// interpret are havocked inexactly, and every other instruction is a no-op.
func FromSSA(fn *ssa.Function, opts Options) (*CFA, error) {
	if len(fn.Blocks) == 0 {
		return nil, errors.Errorf("function %s has no body", fn.Name())
	}

	t := &translator{
		b:       NewBuilder(fn.Name()),
		fn:      fn,
		errFuns: make(map[string]bool),
		nondet:  make(map[string]bool),
		panics:  opts.CheckPanics,
		starts:  make(map[*ssa.BasicBlock]*Node),
	}
	for _, name := range opts.ErrorFunctions {
		t.errFuns[name] = true
	}
	for _, name := range opts.NondetFunctions {
		t.nondet[name] = true
	}

	for _, blk := range fn.Blocks {
		t.starts[blk] = t.b.Node(fmt.Sprintf("b%d", blk.Index))
	}
	t.exit = t.b.Node("exit")

	for _, blk := range fn.Blocks {
		if err := t.block(blk); err != nil {
			return nil, err
		}
	}

	return t.b.Build(t.starts[fn.Blocks[0]], t.exit)
}

type translator struct {
	b       *Builder
	fn      *ssa.Function
	errFuns map[string]bool
	nondet  map[string]bool
	panics  bool
	starts  map[*ssa.BasicBlock]*Node
	exit    *Node
	tmps    int
}

func isBool(t types.Type) bool {
	basic, ok := t.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsBoolean != 0
}

func (t *translator) name(v ssa.Value) string {
	return QualifiedName(t.fn.Name(), v.Name())
}

func (t *translator) expr(v ssa.Value) Expr {
	if c, ok := v.(*ssa.Const); ok {
		return Const{c.Value != nil && constant.BoolVal(c.Value)}
	}
	return Var{t.name(v)}
}

func calleeName(call *ssa.CallCommon) string {
	if callee := call.StaticCallee(); callee != nil {
		return callee.Name()
	}
	return ""
}

// block translates the instructions of blk into a chain of edges.
func (t *translator) block(blk *ssa.BasicBlock) error {
	cur := t.starts[blk]
	next := func(label string) *Node {
		return t.b.Node(fmt.Sprintf("b%d.%s", blk.Index, label))
	}

	for i, insn := range blk.Instrs {
		label := fmt.Sprint(i)
		switch insn := insn.(type) {
		case *ssa.Phi:
			// Phis are assigned on the incoming edges.
		case *ssa.If:
			for k, truth := range []bool{true, false} {
				t.b.Assume(cur, t.enter(blk, blk.Succs[k]), t.expr(insn.Cond), truth)
			}
			return nil
		case *ssa.Jump:
			t.b.Blank(cur, t.enter(blk, blk.Succs[0]), "goto")
			return nil
		case *ssa.Return:
			t.b.Return(cur, t.exit)
			return nil
		case *ssa.Panic:
			if t.panics {
				t.b.Fail(cur, PanicProperty)
			}
			return nil
		case *ssa.Call:
			name := calleeName(insn.Common())
			if t.errFuns[name] {
				t.b.Fail(cur, Property(name))
				return nil
			}
			if isBool(insn.Type()) {
				n := next(label)
				t.b.Havoc(cur, n, t.name(insn), t.nondet[name])
				cur = n
			}
		case *ssa.BinOp:
			if !isBool(insn.Type()) {
				continue
			}
			n := next(label)
			if isBool(insn.X.Type()) && (insn.Op == token.EQL || insn.Op == token.NEQ) {
				var e Expr = Iff{t.expr(insn.X), t.expr(insn.Y)}
				if insn.Op == token.NEQ {
					e = Not{e}
				}
				t.b.Assign(cur, n, t.name(insn), e)
			} else {
				t.b.Havoc(cur, n, t.name(insn), false)
			}
			cur = n
		case *ssa.UnOp:
			if !isBool(insn.Type()) {
				continue
			}
			n := next(label)
			if insn.Op == token.NOT {
				t.b.Assign(cur, n, t.name(insn), Not{t.expr(insn.X)})
			} else {
				t.b.Havoc(cur, n, t.name(insn), false)
			}
			cur = n
		case ssa.Value:
			if !isBool(insn.Type()) {
				continue
			}
			n := next(label)
			t.b.Havoc(cur, n, t.name(insn), false)
			cur = n
		}
	}

	// Blocks always end in a control instruction, unless they are unreachable.
	return errors.Errorf("block %d of %s does not end in a control instruction", blk.Index, t.fn.Name())
}

// enter returns the location at which control from pred enters succ. Boolean
// phis of succ are assigned on the way, in parallel through temporaries when
// there are several.
func (t *translator) enter(pred, succ *ssa.BasicBlock) *Node {
	k := -1
	for i, p := range succ.Preds {
		if p == pred {
			k = i
			break
		}
	}

	var phis []*ssa.Phi
	for _, insn := range succ.Instrs {
		if phi, ok := insn.(*ssa.Phi); ok && isBool(phi.Type()) {
			phis = append(phis, phi)
		}
	}
	if len(phis) == 0 || k < 0 {
		return t.starts[succ]
	}

	label := fmt.Sprintf("b%d>b%d", pred.Index, succ.Index)
	first := t.b.Node(label)
	cur := first
	step := func(v string, e Expr, last bool) {
		n := t.starts[succ]
		if !last {
			n = t.b.Node(label)
		}
		t.b.Assign(cur, n, v, e)
		cur = n
	}

	if len(phis) == 1 {
		step(t.name(phis[0]), t.expr(phis[0].Edges[k]), true)
		return first
	}

	tmps := make([]string, len(phis))
	for i, phi := range phis {
		t.tmps++
		tmps[i] = QualifiedName(t.fn.Name(), fmt.Sprintf("phi%d", t.tmps))
		step(tmps[i], t.expr(phi.Edges[k]), false)
	}
	for i, phi := range phis {
		step(t.name(phi), Var{tmps[i]}, i == len(phis)-1)
	}
	return first
}
