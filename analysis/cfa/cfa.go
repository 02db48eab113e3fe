package cfa

import (
	"fmt"

	"github.com/cs-au-dk/reach/utils/graph"
	"github.com/pkg/errors"
)

// Property names a safety property. A node carrying a property is an error
// location: reaching it violates the property.
type Property string

// Node is a program location.
type Node struct {
	ID       int
	Function string
	Label    string
	Property Property

	leaving, entering []*Edge
}

// Leaving returns the outgoing edges in insertion order.
func (n *Node) Leaving() []*Edge { return n.leaving }

// Entering returns the incoming edges in insertion order.
func (n *Node) Entering() []*Edge { return n.entering }

// IsError reports whether the node is an error location.
func (n *Node) IsError() bool { return n.Property != "" }

func (n *Node) String() string {
	if n.Label != "" {
		return fmt.Sprintf("N%d(%s)", n.ID, n.Label)
	}
	return fmt.Sprintf("N%d", n.ID)
}

type EdgeKind int

const (
	Blank EdgeKind = iota
	Assume
	Assign
	Havoc
	Return
	Error
)

func (k EdgeKind) String() string {
	return [...]string{"blank", "assume", "assign", "havoc", "return", "error"}[k]
}

// Edge is a transition between two program locations.
//
//	Assume: proceed only if Cond evaluates to Truth.
//	Assign: Var := Expr.
//	Havoc: Var gets an arbitrary value. Exact havocs model program inputs,
//	       inexact ones model values the front-end does not interpret.
//	Error: enters the error location To, which violates Property.
type Edge struct {
	ID       int
	Kind     EdgeKind
	From, To *Node

	Cond  Expr
	Truth bool

	Var   string
	Expr  Expr
	Exact bool

	Property Property
	Label    string
}

func (e *Edge) String() string {
	var desc string
	switch e.Kind {
	case Assume:
		if e.Truth {
			desc = "[" + e.Cond.String() + "]"
		} else {
			desc = "[!" + paren(e.Cond) + "]"
		}
	case Assign:
		desc = e.Var + " := " + e.Expr.String()
	case Havoc:
		desc = e.Var + " := *"
		if !e.Exact {
			desc += "?"
		}
	case Return:
		desc = "return"
	case Error:
		desc = "error " + string(e.Property)
	default:
		desc = e.Label
	}
	return fmt.Sprintf("N%d -{%s}-> N%d", e.From.ID, desc, e.To.ID)
}

// Condition returns the constraint an assume edge imposes.
func (e *Edge) Condition() Expr {
	if e.Truth {
		return e.Cond
	}
	return Not{e.Cond}
}

// Uses lists the variables read by the edge.
func (e *Edge) Uses() []string {
	switch e.Kind {
	case Assume:
		return Vars(e.Cond)
	case Assign:
		return Vars(e.Expr)
	}
	return nil
}

// Defines returns the variable written by the edge, if any.
func (e *Edge) Defines() (string, bool) {
	switch e.Kind {
	case Assign, Havoc:
		return e.Var, true
	}
	return "", false
}

// CFA is a control-flow automaton of a single function.
type CFA struct {
	Function string
	Entry    *Node
	Exit     *Node
	Nodes    []*Node
	Edges    []*Edge

	rank map[*Node]int
}

// Priority is the topological rank of the node's strongly connected
// component, counted from the entry. Lower ranks come first.
func (c *CFA) Priority(n *Node) int {
	if r, ok := c.rank[n]; ok {
		return r
	}
	return len(c.Nodes)
}

// Graph exposes the CFA as a graph over nodes.
func (c *CFA) Graph() graph.Graph[*Node] {
	return graph.OfHashable(func(n *Node) (res []*Node) {
		seen := map[*Node]bool{}
		for _, e := range n.leaving {
			if !seen[e.To] {
				seen[e.To] = true
				res = append(res, e.To)
			}
		}
		return
	})
}

// ErrorNodes returns the error locations of the automaton.
func (c *CFA) ErrorNodes() (res []*Node) {
	for _, n := range c.Nodes {
		if n.IsError() {
			res = append(res, n)
		}
	}
	return
}

// Properties lists the distinct properties that can be violated.
func (c *CFA) Properties() (res []Property) {
	seen := map[Property]bool{}
	for _, n := range c.ErrorNodes() {
		if !seen[n.Property] {
			seen[n.Property] = true
			res = append(res, n.Property)
		}
	}
	return
}

// Variables lists every variable mentioned by an edge, in order of first
// occurrence.
func (c *CFA) Variables() (res []string) {
	seen := map[string]bool{}
	add := func(vs ...string) {
		for _, v := range vs {
			if !seen[v] {
				seen[v] = true
				res = append(res, v)
			}
		}
	}
	for _, e := range c.Edges {
		if v, ok := e.Defines(); ok {
			add(v)
		}
		add(e.Uses()...)
	}
	return
}

// Builder constructs automata edge by edge.
type Builder struct {
	cfa  *CFA
	errs map[Property]*Node
}

func NewBuilder(function string) *Builder {
	return &Builder{
		cfa:  &CFA{Function: function},
		errs: make(map[Property]*Node),
	}
}

// Node creates a fresh location.
func (b *Builder) Node(label string) *Node {
	n := &Node{ID: len(b.cfa.Nodes), Function: b.cfa.Function, Label: label}
	b.cfa.Nodes = append(b.cfa.Nodes, n)
	return n
}

// ErrorNode returns the error location of the property, creating it on
// first use.
func (b *Builder) ErrorNode(p Property) *Node {
	if n, ok := b.errs[p]; ok {
		return n
	}
	n := b.Node("error:" + string(p))
	n.Property = p
	b.errs[p] = n
	return n
}

func (b *Builder) edge(e *Edge) *Edge {
	e.ID = len(b.cfa.Edges)
	b.cfa.Edges = append(b.cfa.Edges, e)
	e.From.leaving = append(e.From.leaving, e)
	e.To.entering = append(e.To.entering, e)
	return e
}

func (b *Builder) Blank(from, to *Node, label string) *Edge {
	return b.edge(&Edge{Kind: Blank, From: from, To: to, Label: label})
}

func (b *Builder) Assume(from, to *Node, cond Expr, truth bool) *Edge {
	return b.edge(&Edge{Kind: Assume, From: from, To: to, Cond: cond, Truth: truth})
}

// Branch adds the pair of assume edges for a two-way branch on cond.
func (b *Builder) Branch(from *Node, cond Expr, then, els *Node) (*Edge, *Edge) {
	return b.Assume(from, then, cond, true), b.Assume(from, els, cond, false)
}

func (b *Builder) Assign(from, to *Node, v string, e Expr) *Edge {
	return b.edge(&Edge{Kind: Assign, From: from, To: to, Var: v, Expr: e})
}

func (b *Builder) Havoc(from, to *Node, v string, exact bool) *Edge {
	return b.edge(&Edge{Kind: Havoc, From: from, To: to, Var: v, Exact: exact})
}

func (b *Builder) Return(from, to *Node) *Edge {
	return b.edge(&Edge{Kind: Return, From: from, To: to})
}

// Fail adds an edge from `from` to the error location of p.
func (b *Builder) Fail(from *Node, p Property) *Edge {
	return b.edge(&Edge{Kind: Error, From: from, To: b.ErrorNode(p), Property: p})
}

// Build finalizes the automaton with the given entry and exit locations.
// The exit may be nil.
func (b *Builder) Build(entry, exit *Node) (*CFA, error) {
	c := b.cfa
	if entry == nil || entry.ID >= len(c.Nodes) || c.Nodes[entry.ID] != entry {
		return nil, errors.Errorf("entry node of %s does not belong to the automaton", c.Function)
	}
	for _, e := range c.Edges {
		if e.Kind == Assume && e.Cond == nil {
			return nil, errors.Errorf("assume edge %d has no condition", e.ID)
		}
		if e.Kind == Assign && (e.Expr == nil || e.Var == "") {
			return nil, errors.Errorf("assignment edge %d is incomplete", e.ID)
		}
	}
	for _, n := range c.Nodes {
		if n.IsError() && len(n.leaving) > 0 {
			return nil, errors.Errorf("error location %v has leaving edges", n)
		}
	}

	c.Entry, c.Exit = entry, exit
	scc := c.Graph().SCC([]*Node{entry})
	c.rank = make(map[*Node]int, len(c.Nodes))
	for _, n := range c.Nodes {
		if scc.ComponentOf(n) >= 0 {
			c.rank[n] = scc.TopologicalRank(n)
		}
	}
	b.cfa = nil
	return c, nil
}
