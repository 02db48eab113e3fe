// Package arg implements the abstract reachability graph as an arena of
// nodes addressed by stable identifiers. Parent and child links are owned
// by the graph; covering links are plain identifiers.
package arg

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
)

// ID identifies a node of the graph. The zero ID denotes no node.
type ID int

const None ID = 0

// Node of the reachability graph.
type Node struct {
	id    ID
	State cpa.AbstractState

	parents  []ID
	children []ID
	// Edge from each parent into this node.
	inEdges map[ID]*cfa.Edge

	coveredBy ID
	covering  []ID
}

func (n *Node) ID() ID                  { return n.id }
func (n *Node) Parents() []ID           { return n.parents }
func (n *Node) Children() []ID          { return n.children }
func (n *Node) Covering() []ID          { return n.covering }
func (n *Node) IsCovered() bool         { return n.coveredBy != None }
func (n *Node) CoveredBy() ID           { return n.coveredBy }
func (n *Node) IsTarget() bool          { return cpa.IsTarget(n.State) }
func (n *Node) EdgeFrom(p ID) *cfa.Edge { return n.inEdges[p] }

func (n *Node) ViolatedProperties() []cpa.Property {
	return cpa.ViolatedProperties(n.State)
}

// ARG is the arena. It is not safe for concurrent use.
type ARG struct {
	nodes map[ID]*Node
	next  ID
	root  ID
}

func New() *ARG {
	return &ARG{nodes: make(map[ID]*Node), next: 1}
}

func (g *ARG) alloc(state cpa.AbstractState) *Node {
	n := &Node{id: g.next, State: state, inEdges: make(map[ID]*cfa.Edge)}
	g.nodes[n.id] = n
	g.next++
	return n
}

func (g *ARG) get(id ID) (*Node, error) {
	if n, ok := g.nodes[id]; ok {
		return n, nil
	}
	return nil, errors.Wrapf(cpa.ErrIllegalState, "node %d is not part of the graph", id)
}

// Root returns the root node, or None if the graph is empty.
func (g *ARG) Root() ID { return g.root }

// Node returns the node with the given ID, or nil if it was removed.
func (g *ARG) Node(id ID) *Node { return g.nodes[id] }

// Contains reports whether the node is live.
func (g *ARG) Contains(id ID) bool {
	_, ok := g.nodes[id]
	return ok
}

// State of a live node, or nil.
func (g *ARG) State(id ID) cpa.AbstractState {
	if n, ok := g.nodes[id]; ok {
		return n.State
	}
	return nil
}

// Size is the number of live nodes.
func (g *ARG) Size() int { return len(g.nodes) }

// Nodes returns the IDs of the live nodes in creation order.
func (g *ARG) Nodes() []ID {
	ids := make([]ID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Targets returns the live target nodes in creation order.
func (g *ARG) Targets() (res []ID) {
	for _, id := range g.Nodes() {
		if g.nodes[id].IsTarget() {
			res = append(res, id)
		}
	}
	return
}

// AddRoot creates the root node.
func (g *ARG) AddRoot(state cpa.AbstractState) (ID, error) {
	if g.root != None {
		return None, errors.Wrap(cpa.ErrIllegalState, "graph already has a root")
	}
	g.root = g.alloc(state).id
	return g.root, nil
}

// NewChild creates a successor of parent reached along edge.
func (g *ARG) NewChild(parent ID, edge *cfa.Edge, state cpa.AbstractState) (ID, error) {
	p, err := g.get(parent)
	if err != nil {
		return None, err
	}
	n := g.alloc(state)
	link(p, n, edge)
	return n.id, nil
}

// AddParent adds an additional parent to child.
func (g *ARG) AddParent(child, parent ID, edge *cfa.Edge) error {
	c, err := g.get(child)
	if err != nil {
		return err
	}
	p, err := g.get(parent)
	if err != nil {
		return err
	}
	if _, dup := c.inEdges[parent]; dup {
		return nil
	}
	link(p, c, edge)
	return nil
}

func link(p, c *Node, edge *cfa.Edge) {
	p.children = append(p.children, c.id)
	c.parents = append(c.parents, p.id)
	c.inEdges[p.id] = edge
}

func without(ids []ID, id ID) []ID {
	res := ids[:0]
	for _, x := range ids {
		if x != id {
			res = append(res, x)
		}
	}
	return res
}

// SetCovered records that id is covered by `by`. A covering node must not be
// covered itself, which keeps the covering relation acyclic.
func (g *ARG) SetCovered(id, by ID) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	c, err := g.get(by)
	if err != nil {
		return err
	}
	switch {
	case id == by:
		return cpa.InvariantViolation("node %d cannot cover itself", id)
	case c.IsCovered():
		return cpa.InvariantViolation("node %d is covered and cannot cover %d", by, id)
	case len(n.covering) > 0:
		return cpa.InvariantViolation("node %d covers other nodes and cannot be covered", id)
	case n.IsCovered():
		return cpa.InvariantViolation("node %d is already covered by %d", id, n.coveredBy)
	}
	n.coveredBy = by
	c.covering = append(c.covering, id)
	return nil
}

// Uncover drops the covering link of id, if any.
func (g *ARG) Uncover(id ID) {
	n, ok := g.nodes[id]
	if !ok || n.coveredBy == None {
		return
	}
	if c, ok := g.nodes[n.coveredBy]; ok {
		c.covering = without(c.covering, id)
	}
	n.coveredBy = None
}

// Remove detaches the node from its parents, children and covering links and
// drops it from the arena. It returns the nodes that were covered by it.
func (g *ARG) Remove(id ID) ([]ID, error) {
	n, err := g.get(id)
	if err != nil {
		return nil, err
	}
	for _, p := range n.parents {
		if pn, ok := g.nodes[p]; ok {
			pn.children = without(pn.children, id)
		}
	}
	for _, c := range n.children {
		if cn, ok := g.nodes[c]; ok {
			cn.parents = without(cn.parents, id)
			delete(cn.inEdges, id)
		}
	}
	g.Uncover(id)
	uncovered := append([]ID(nil), n.covering...)
	for _, c := range uncovered {
		if cn, ok := g.nodes[c]; ok {
			cn.coveredBy = None
		}
	}
	n.covering = nil

	delete(g.nodes, id)
	if g.root == id {
		g.root = None
	}
	return uncovered, nil
}

// ReplaceInARG moves the parents, children and covered nodes of old to
// replacement and removes old.
func (g *ARG) ReplaceInARG(old, replacement ID) error {
	o, err := g.get(old)
	if err != nil {
		return err
	}
	r, err := g.get(replacement)
	if err != nil {
		return err
	}
	if old == replacement {
		return nil
	}

	for _, p := range o.parents {
		if _, dup := r.inEdges[p]; !dup && p != replacement {
			link(g.nodes[p], r, o.inEdges[p])
		}
	}
	for _, c := range o.children {
		cn := g.nodes[c]
		if _, dup := cn.inEdges[replacement]; !dup && c != replacement {
			link(r, cn, cn.inEdges[old])
		}
	}
	covered := append([]ID(nil), o.covering...)
	if _, err := g.Remove(old); err != nil {
		return err
	}
	if g.root == None && len(r.parents) == 0 {
		g.root = replacement
	}
	for _, c := range covered {
		if err := g.SetCovered(c, replacement); err != nil {
			return err
		}
	}
	return nil
}

// Substitute allocates a node for state and replaces old by it.
func (g *ARG) Substitute(old ID, state cpa.AbstractState) (ID, error) {
	if _, err := g.get(old); err != nil {
		return None, err
	}
	n := g.alloc(state)
	if err := g.ReplaceInARG(old, n.id); err != nil {
		return None, err
	}
	return n.id, nil
}

// Subtree returns root and all its transitive children, in creation order.
func (g *ARG) Subtree(root ID) []ID {
	if !g.Contains(root) {
		return nil
	}
	ids := g.ChildGraph().Reachable(root)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Path is a sequence of nodes from the root to some node, together with the
// CFA edges between consecutive nodes.
type Path struct {
	States []ID
	Edges  []*cfa.Edge
}

func (p Path) Len() int  { return len(p.Edges) }
func (p Path) Last() ID  { return p.States[len(p.States)-1] }
func (p Path) First() ID { return p.States[0] }

// PathTo follows first parents from id up to the root.
func (g *ARG) PathTo(id ID) (Path, error) {
	var states []ID
	var edges []*cfa.Edge
	seen := map[ID]bool{}
	for cur := id; ; {
		n, err := g.get(cur)
		if err != nil {
			return Path{}, err
		}
		if seen[cur] {
			return Path{}, cpa.InvariantViolation("cycle through node %d", cur)
		}
		seen[cur] = true
		states = append(states, cur)
		if len(n.parents) == 0 {
			if cur != g.root {
				return Path{}, cpa.InvariantViolation("node %d has no path to the root", id)
			}
			break
		}
		p := n.parents[0]
		edges = append(edges, n.inEdges[p])
		cur = p
	}

	for i, j := 0, len(states)-1; i < j; i, j = i+1, j-1 {
		states[i], states[j] = states[j], states[i]
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	return Path{States: states, Edges: edges}, nil
}
