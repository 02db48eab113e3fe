// Package reached implements the reached set of the reachability engine:
// the insertion-ordered collection of explored abstract states with their
// precisions, partitioned by key, together with the waitlist of states that
// still have to be expanded.
package reached

import (
	"github.com/benbjohnson/immutable"
	"github.com/pkg/errors"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/utils"
)

// Options configure a reached set.
type Options struct {
	Order Order
	Seed  int64
	// Priority of a state in the topological order. Lower is popped first.
	Priority func(cpa.AbstractState) int
	// PartitionKey overrides the default partitioning.
	PartitionKey func(cpa.AbstractState) any
}

type entry struct {
	state cpa.AbstractState
	prec  cpa.Precision
	seq   int
	key   any
}

// Set is the reached set. States are addressed by their ARG node ID.
type Set struct {
	opts       Options
	entries    map[arg.ID]*entry
	order      *immutable.SortedMap[int, arg.ID]
	seq        int
	partitions map[any][]arg.ID
	waitlist   Waitlist
	first      arg.ID
	last       arg.ID
}

// New creates an empty reached set.
func New(opts Options) (*Set, error) {
	if opts.Order == "" {
		opts.Order = BFS
	}
	s := &Set{opts: opts}
	wl, err := NewWaitlist(opts.Order, opts.Seed, s.priority(opts.Priority))
	if err != nil {
		return nil, err
	}
	s.waitlist = wl
	s.reset()
	return s, nil
}

func (s *Set) priority(of func(cpa.AbstractState) int) func(arg.ID) int {
	if of == nil {
		return nil
	}
	return func(id arg.ID) int {
		if e, ok := s.entries[id]; ok {
			return of(e.state)
		}
		return 0
	}
}

// LocationPriority ranks a state by the topological priority of its
// location in c.
func LocationPriority(c *cfa.CFA) func(cpa.AbstractState) int {
	return func(state cpa.AbstractState) int {
		if n, ok := cpa.Location(state); ok {
			return c.Priority(n)
		}
		return len(c.Nodes)
	}
}

func (s *Set) reset() {
	s.entries = make(map[arg.ID]*entry)
	s.order = immutable.NewSortedMap[int, arg.ID](utils.OrderedComparer[int]{})
	s.partitions = make(map[any][]arg.ID)
	s.first, s.last = arg.None, arg.None
	s.waitlist.Clear()
}

// KeyOf computes the partition key of a state: its own key if it is
// partitionable, otherwise its location, otherwise a single shared partition.
func (s *Set) KeyOf(state cpa.AbstractState) any {
	if s.opts.PartitionKey != nil {
		return s.opts.PartitionKey(state)
	}
	if p, ok := state.(cpa.Partitionable); ok {
		return p.PartitionKey()
	}
	if n, ok := cpa.Location(state); ok {
		return n.ID
	}
	return nil
}

// Add inserts a state into the reached set and the waitlist.
func (s *Set) Add(id arg.ID, state cpa.AbstractState, prec cpa.Precision) error {
	switch {
	case id == arg.None:
		return cpa.IllegalState("cannot add a state without an ID")
	case state == nil:
		return cpa.IllegalState("cannot add nil state %d", id)
	case prec == nil:
		return cpa.IllegalState("cannot add state %d without precision", id)
	case s.first == arg.None && len(s.entries) > 0:
		return cpa.IllegalState("first state is unset in a non-empty reached set")
	}
	if _, ok := s.entries[id]; ok {
		return cpa.IllegalState("state %d is already reached", id)
	}

	s.seq++
	key := s.KeyOf(state)
	s.entries[id] = &entry{state: state, prec: prec, seq: s.seq, key: key}
	s.order = s.order.Set(s.seq, id)
	s.partitions[key] = append(s.partitions[key], id)
	if s.first == arg.None {
		s.first = id
	}
	s.last = id
	s.waitlist.Add(id)
	return nil
}

// Remove drops a state from the reached set, its partition and the waitlist.
// The first state can only be dropped with Clear, or by Replace.
func (s *Set) Remove(id arg.ID) error {
	if id == s.first && len(s.entries) > 1 {
		return cpa.IllegalState("cannot remove the first state %d", id)
	}
	s.remove(id)
	if len(s.entries) == 0 {
		s.first = arg.None
	}
	return nil
}

func (s *Set) remove(id arg.ID) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	delete(s.entries, id)
	s.order = s.order.Delete(e.seq)
	part := s.partitions[e.key]
	for i, x := range part {
		if x == id {
			part = append(part[:i:i], part[i+1:]...)
			break
		}
	}
	if len(part) == 0 {
		delete(s.partitions, e.key)
	} else {
		s.partitions[e.key] = part
	}
	s.waitlist.Remove(id)
	if s.last == id {
		s.last = arg.None
		if s.order.Len() > 0 {
			itr := s.order.Iterator()
			itr.Last()
			_, s.last, _ = itr.Prev()
		}
	}
}

// Replace substitutes old by a new state, which inherits the role of first
// state if old had it. The new state is put on the waitlist.
func (s *Set) Replace(old, id arg.ID, state cpa.AbstractState, prec cpa.Precision) error {
	if _, ok := s.entries[old]; !ok {
		return cpa.IllegalState("replaced state %d is not reached", old)
	}
	wasFirst := old == s.first
	s.remove(old)
	if wasFirst || len(s.entries) == 0 {
		s.first = arg.None
	}
	if err := s.Add(id, state, prec); err != nil {
		return err
	}
	if wasFirst {
		s.first = id
	}
	return nil
}

// ReAddToWaitlist puts an already reached state back on the waitlist.
func (s *Set) ReAddToWaitlist(id arg.ID) error {
	if _, ok := s.entries[id]; !ok {
		return cpa.IllegalState("state %d is not reached", id)
	}
	s.waitlist.Add(id)
	return nil
}

// PopFromWaitlist removes the next waiting state. The second result is false
// when the waitlist is empty.
func (s *Set) PopFromWaitlist() (arg.ID, bool) {
	return s.waitlist.Pop()
}

// State returns the abstract state of a reached state, or nil.
func (s *Set) State(id arg.ID) cpa.AbstractState {
	if e, ok := s.entries[id]; ok {
		return e.state
	}
	return nil
}

// Precision of a reached state.
func (s *Set) Precision(id arg.ID) (cpa.Precision, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, cpa.IllegalState("state %d is not reached", id)
	}
	return e.prec, nil
}

// UpdatePrecision replaces the precision of a reached state.
func (s *Set) UpdatePrecision(id arg.ID, prec cpa.Precision) error {
	e, ok := s.entries[id]
	switch {
	case !ok:
		return cpa.IllegalState("state %d is not reached", id)
	case prec == nil:
		return cpa.IllegalState("cannot set nil precision for state %d", id)
	}
	e.prec = prec
	return nil
}

// Partition returns the reached states with the given key in insertion order.
func (s *Set) Partition(key any) []arg.ID {
	return append([]arg.ID(nil), s.partitions[key]...)
}

// ReachedForState returns the partition a state belongs to, whether or not the
// state itself is reached.
func (s *Set) ReachedForState(state cpa.AbstractState) []arg.ID {
	return s.Partition(s.KeyOf(state))
}

// PartitionStates is ReachedForState with the abstract states resolved.
func (s *Set) PartitionStates(state cpa.AbstractState) ([]arg.ID, []cpa.AbstractState) {
	ids := s.ReachedForState(state)
	states := make([]cpa.AbstractState, len(ids))
	for i, id := range ids {
		states[i] = s.entries[id].state
	}
	return ids, states
}

func (s *Set) Contains(id arg.ID) bool {
	_, ok := s.entries[id]
	return ok
}

func (s *Set) Size() int { return len(s.entries) }

// FirstState is the state the exploration started from.
func (s *Set) FirstState() arg.ID { return s.first }

// LastState is the most recently added state still in the set.
func (s *Set) LastState() arg.ID { return s.last }

// States returns a snapshot of the reached states in insertion order.
func (s *Set) States() []arg.ID {
	res := make([]arg.ID, 0, len(s.entries))
	for itr := s.order.Iterator(); !itr.Done(); {
		_, id, _ := itr.Next()
		res = append(res, id)
	}
	return res
}

// Waitlist returns a snapshot of the waiting states.
func (s *Set) Waitlist() []arg.ID { return s.waitlist.Elements() }

func (s *Set) WaitlistSize() int { return s.waitlist.Len() }

func (s *Set) HasWaitingState() bool { return s.waitlist.Len() > 0 }

// IsWaiting reports whether the state is on the waitlist.
func (s *Set) IsWaiting(id arg.ID) bool { return s.waitlist.Contains(id) }

// ViolatedProperties collects the properties violated by reached target
// states, without duplicates, in insertion order.
func (s *Set) ViolatedProperties() (res []cpa.Property) {
	seen := map[cpa.Property]bool{}
	for _, id := range s.States() {
		for _, p := range cpa.ViolatedProperties(s.entries[id].state) {
			if !seen[p] {
				seen[p] = true
				res = append(res, p)
			}
		}
	}
	return
}

// Targets returns the reached target states in insertion order.
func (s *Set) Targets() (res []arg.ID) {
	for _, id := range s.States() {
		if cpa.IsTarget(s.entries[id].state) {
			res = append(res, id)
		}
	}
	return
}

// Clear empties the reached set. The next insertion sets a new first state.
func (s *Set) Clear() { s.reset() }

// ClearWaitlist drops all waiting states while keeping them reached.
func (s *Set) ClearWaitlist() { s.waitlist.Clear() }

// Check verifies that every waiting state is reached and that the partitions
// and the insertion order agree with the entries.
func (s *Set) Check() error {
	for _, id := range s.waitlist.Elements() {
		if _, ok := s.entries[id]; !ok {
			return cpa.InvariantViolation("waiting state %d is not reached", id)
		}
	}
	if s.order.Len() != len(s.entries) {
		return cpa.InvariantViolation("insertion order has %d states, reached set has %d", s.order.Len(), len(s.entries))
	}
	n := 0
	for key, part := range s.partitions {
		for _, id := range part {
			if e, ok := s.entries[id]; !ok || e.key != key {
				return cpa.InvariantViolation("state %d is misplaced in partition %v", id, key)
			}
		}
		n += len(part)
	}
	if n != len(s.entries) {
		return errors.Wrapf(cpa.ErrInvariantViolation, "partitions hold %d states, reached set has %d", n, len(s.entries))
	}
	if len(s.entries) > 0 && !s.Contains(s.first) {
		return cpa.InvariantViolation("first state %d is not reached", s.first)
	}
	return nil
}
