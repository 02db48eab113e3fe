package reached

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
)

// ARGReachedSet couples a reached set with the abstract reachability graph
// over its states. Every mutation updates both, so that the reached states are
// exactly the live, uncovered nodes of the graph.
type ARGReachedSet struct {
	*Set
	ARG *arg.ARG

	log logrus.FieldLogger
}

func NewARGReachedSet(opts Options, log logrus.FieldLogger) (*ARGReachedSet, error) {
	set, err := New(opts)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ARGReachedSet{Set: set, ARG: arg.New(), log: log}, nil
}

// Initialize adds the first state of the exploration as the root.
func (rs *ARGReachedSet) Initialize(state cpa.AbstractState, prec cpa.Precision) (arg.ID, error) {
	if rs.Size() > 0 {
		return arg.None, cpa.IllegalState("reached set is already initialized")
	}
	rs.ARG = arg.New()
	id, err := rs.ARG.AddRoot(state)
	if err != nil {
		return arg.None, err
	}
	return id, rs.Add(id, state, prec)
}

// Reset empties the reached set and the graph.
func (rs *ARGReachedSet) Reset() {
	rs.Clear()
	rs.ARG = arg.New()
}

// AddChild inserts a successor of parent reached along edge.
func (rs *ARGReachedSet) AddChild(parent arg.ID, edge *cfa.Edge, state cpa.AbstractState, prec cpa.Precision) (arg.ID, error) {
	if !rs.Contains(parent) {
		return arg.None, cpa.IllegalState("parent %d is not reached", parent)
	}
	id, err := rs.ARG.NewChild(parent, edge, state)
	if err != nil {
		return arg.None, err
	}
	if err := rs.Add(id, state, prec); err != nil {
		rs.ARG.Remove(id)
		return arg.None, err
	}
	return id, nil
}

// AddCovered links a successor of parent that is covered by coverer. The
// successor is not reached and is never expanded.
func (rs *ARGReachedSet) AddCovered(parent arg.ID, edge *cfa.Edge, state cpa.AbstractState, coverer arg.ID) (arg.ID, error) {
	if !rs.Contains(parent) {
		return arg.None, cpa.IllegalState("parent %d is not reached", parent)
	}
	if !rs.Contains(coverer) {
		return arg.None, cpa.IllegalState("covering state %d is not reached", coverer)
	}
	id, err := rs.ARG.NewChild(parent, edge, state)
	if err != nil {
		return arg.None, err
	}
	if err := rs.ARG.SetCovered(id, coverer); err != nil {
		rs.ARG.Remove(id)
		return arg.None, err
	}
	return id, nil
}

// ReplaceMerged replaces the reached state r by the result of merging it with
// a successor of parent along edge. The merged node takes over the parents,
// children and covered nodes of r and gets parent as an extra parent.
//
// If parent lies in the subtree of r, the merge closes a loop: the strict
// descendants of r, parent included, are pruned instead and the merged state
// is explored afresh.
func (rs *ARGReachedSet) ReplaceMerged(r arg.ID, merged cpa.AbstractState, prec cpa.Precision, parent arg.ID, edge *cfa.Edge) (arg.ID, error) {
	if !rs.Contains(r) {
		return arg.None, cpa.IllegalState("merged state %d is not reached", r)
	}

	loop := false
	for _, id := range rs.ARG.Subtree(r) {
		if id == parent {
			loop = true
			break
		}
	}

	var frontier []arg.ID
	if loop {
		var err error
		if frontier, err = rs.prune(rs.strictDescendants(r), r); err != nil {
			return arg.None, err
		}
	}

	id, err := rs.ARG.Substitute(r, merged)
	if err != nil {
		return arg.None, err
	}
	if !loop {
		if err := rs.ARG.AddParent(id, parent, edge); err != nil {
			return arg.None, err
		}
	}
	if err := rs.Replace(r, id, merged, prec); err != nil {
		return arg.None, err
	}
	for _, f := range frontier {
		rs.ReAddToWaitlist(f)
	}

	rs.log.WithFields(logrus.Fields{"state": r, "merged": id, "loop": loop}).Trace("Merged state")
	return id, nil
}

func (rs *ARGReachedSet) strictDescendants(root arg.ID) []arg.ID {
	var res []arg.ID
	for _, id := range rs.ARG.Subtree(root) {
		if id != root {
			res = append(res, id)
		}
	}
	return res
}

// prune removes the given nodes and every node covered by one of them from
// the graph and the reached set. It returns the reached parents of removed
// nodes that survive, excluding keep.
func (rs *ARGReachedSet) prune(ids []arg.ID, keep arg.ID) ([]arg.ID, error) {
	removed := make(map[arg.ID]bool, len(ids))
	for _, id := range ids {
		removed[id] = true
	}
	for _, id := range ids {
		for _, c := range rs.ARG.Node(id).Covering() {
			if c == keep {
				return nil, cpa.InvariantViolation("kept node %d is covered by pruned node %d", keep, id)
			}
			removed[c] = true
		}
	}
	if removed[rs.ARG.Root()] {
		return nil, cpa.IllegalState("cannot prune the root %d", rs.ARG.Root())
	}

	all := make([]arg.ID, 0, len(removed))
	for id := range removed {
		all = append(all, id)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	seen := map[arg.ID]bool{}
	var frontier []arg.ID
	for _, id := range all {
		for _, p := range rs.ARG.Node(id).Parents() {
			if !removed[p] && p != keep && !seen[p] && rs.Contains(p) {
				seen[p] = true
				frontier = append(frontier, p)
			}
		}
	}

	for i := len(all) - 1; i >= 0; i-- {
		id := all[i]
		rs.remove(id)
		if _, err := rs.ARG.Remove(id); err != nil {
			return nil, err
		}
	}
	sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })
	return frontier, nil
}

// RemoveSubtree prunes the strict descendants of root, together with the nodes
// they cover. The root stays reached, gets the new precision (unless nil) and
// is put back on the waitlist, as are all other surviving parents of pruned
// nodes.
func (rs *ARGReachedSet) RemoveSubtree(root arg.ID, prec cpa.Precision) error {
	if !rs.Contains(root) {
		return cpa.IllegalState("refinement root %d is not reached", root)
	}
	frontier, err := rs.prune(rs.strictDescendants(root), root)
	if err != nil {
		return err
	}
	if prec != nil {
		if err := rs.UpdatePrecision(root, prec); err != nil {
			return err
		}
	}
	rs.ReAddToWaitlist(root)
	for _, f := range frontier {
		rs.ReAddToWaitlist(f)
	}
	rs.log.WithFields(logrus.Fields{"root": root, "frontier": len(frontier), "size": rs.Size()}).Debug("Removed subtree")
	return nil
}

// RemoveTarget removes a target state and puts its parent back on the
// waitlist. It returns the parent and the edge leading to the target. A
// target with several parents violates the invariant that targets are
// reached along a single edge.
func (rs *ARGReachedSet) RemoveTarget(target arg.ID) (arg.ID, *cfa.Edge, error) {
	return rs.removeTarget(target, true)
}

// DropTarget removes a target state without putting its parent back on the
// waitlist, so the edge into the target is not explored again in this pass.
func (rs *ARGReachedSet) DropTarget(target arg.ID) (arg.ID, *cfa.Edge, error) {
	return rs.removeTarget(target, false)
}

func (rs *ARGReachedSet) removeTarget(target arg.ID, requeue bool) (arg.ID, *cfa.Edge, error) {
	n := rs.ARG.Node(target)
	if n == nil || !rs.Contains(target) {
		return arg.None, nil, cpa.IllegalState("target %d is not reached", target)
	}
	if !n.IsTarget() {
		return arg.None, nil, cpa.IllegalState("state %d is not a target", target)
	}
	parents := n.Parents()
	if len(parents) != 1 {
		return arg.None, nil, cpa.InvariantViolation("target %d has %d parents", target, len(parents))
	}
	parent, edge := parents[0], n.EdgeFrom(parents[0])

	if _, err := rs.prune(rs.ARG.Subtree(target), arg.None); err != nil {
		return arg.None, nil, err
	}
	if !requeue {
		return parent, edge, nil
	}
	if err := rs.ReAddToWaitlist(parent); err != nil {
		return arg.None, nil, err
	}
	return parent, edge, nil
}

// DropUnreachedChildrenOfWaiting removes the covered children of waiting
// states. Those children are generated again when the state is expanded.
func (rs *ARGReachedSet) DropUnreachedChildrenOfWaiting() error {
	for _, id := range rs.Waitlist() {
		n := rs.ARG.Node(id)
		if n == nil {
			continue
		}
		for _, c := range append([]arg.ID(nil), n.Children()...) {
			if rs.Contains(c) {
				continue
			}
			if _, err := rs.ARG.Remove(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdatePrecisionGlobally replaces the precision of every reached state.
func (rs *ARGReachedSet) UpdatePrecisionGlobally(update func(arg.ID, cpa.Precision) cpa.Precision) error {
	for _, id := range rs.States() {
		p, _ := rs.Precision(id)
		if err := rs.UpdatePrecision(id, update(id, p)); err != nil {
			return err
		}
	}
	return nil
}

// Path is the path in the graph from the root to id.
func (rs *ARGReachedSet) Path(id arg.ID) (arg.Path, error) {
	return rs.ARG.PathTo(id)
}

// Recover checks the consistency of the reached set and the graph: the graph
// is well formed, the waitlist only holds reached states, and the reached
// states are exactly the live uncovered nodes.
func (rs *ARGReachedSet) Recover() error {
	if err := rs.ARG.Check(); err != nil {
		return err
	}
	if err := rs.Check(); err != nil {
		return err
	}
	if rs.Size() > 0 && rs.FirstState() != rs.ARG.Root() {
		return cpa.InvariantViolation("first state %d is not the root %d", rs.FirstState(), rs.ARG.Root())
	}
	for _, id := range rs.States() {
		n := rs.ARG.Node(id)
		switch {
		case n == nil:
			return cpa.InvariantViolation("reached state %d is not in the graph", id)
		case n.IsCovered():
			return cpa.InvariantViolation("reached state %d is covered", id)
		}
	}
	for _, id := range rs.ARG.Nodes() {
		if !rs.ARG.Node(id).IsCovered() && !rs.Contains(id) {
			return cpa.InvariantViolation("uncovered node %d is not reached", id)
		}
	}
	return nil
}
