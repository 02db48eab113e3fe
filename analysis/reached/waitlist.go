package reached

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/utils/pq"
	"github.com/cs-au-dk/reach/utils/worklist"
)

// Order of the waitlist.
type Order string

const (
	BFS         Order = "bfs"
	DFS         Order = "dfs"
	Random      Order = "random"
	Topological Order = "topological"
)

var Orders = []Order{BFS, DFS, Random, Topological}

func ParseOrder(s string) (Order, error) {
	for _, o := range Orders {
		if strings.EqualFold(s, string(o)) {
			return o, nil
		}
	}
	return "", errors.Wrapf(cpa.ErrInvalidConfiguration, "unknown waitlist order %q", s)
}

// Waitlist holds the reached states that still have to be expanded. It
// never holds duplicates.
type Waitlist interface {
	Add(id arg.ID)
	// Pop removes the next state. The second result is false if the
	// waitlist is empty.
	Pop() (arg.ID, bool)
	Remove(id arg.ID)
	Contains(id arg.ID) bool
	Len() int
	// Elements lists the waiting states, for inspection only.
	Elements() []arg.ID
	Clear()
}

type queue interface {
	Add(arg.ID)
	GetNext() arg.ID
	IsEmpty() bool
	Len() int
	Elements() []arg.ID
	Filter(func(arg.ID) bool)
	Clear()
}

type waitlist struct {
	q       queue
	members map[arg.ID]struct{}
}

// NewWaitlist creates a waitlist of the given order. The random order is
// seeded with seed. The topological order pops states with the smallest
// priority first and breaks ties by insertion order.
func NewWaitlist(order Order, seed int64, priority func(arg.ID) int) (Waitlist, error) {
	var q queue
	switch order {
	case BFS:
		wl := worklist.Empty[arg.ID]()
		q = &wl
	case DFS:
		s := worklist.EmptyStack[arg.ID]()
		q = &s
	case Random:
		r := worklist.EmptyRandom[arg.ID](seed)
		q = &r
	case Topological:
		if priority == nil {
			return nil, errors.Wrap(cpa.ErrInvalidConfiguration, "topological order requires priorities")
		}
		q = newPriorityQueue(priority)
	default:
		return nil, errors.Wrapf(cpa.ErrInvalidConfiguration, "unknown waitlist order %q", order)
	}
	return &waitlist{q: q, members: make(map[arg.ID]struct{})}, nil
}

func (w *waitlist) Add(id arg.ID) {
	if _, ok := w.members[id]; ok {
		return
	}
	w.members[id] = struct{}{}
	w.q.Add(id)
}

func (w *waitlist) Pop() (arg.ID, bool) {
	if w.q.IsEmpty() {
		return arg.None, false
	}
	id := w.q.GetNext()
	delete(w.members, id)
	return id, true
}

func (w *waitlist) Remove(id arg.ID) {
	if _, ok := w.members[id]; !ok {
		return
	}
	delete(w.members, id)
	w.q.Filter(func(x arg.ID) bool { return x != id })
}

func (w *waitlist) Contains(id arg.ID) bool {
	_, ok := w.members[id]
	return ok
}

func (w *waitlist) Len() int           { return w.q.Len() }
func (w *waitlist) Elements() []arg.ID { return w.q.Elements() }

func (w *waitlist) Clear() {
	w.q.Clear()
	w.members = make(map[arg.ID]struct{})
}

// priorityQueue orders by priority, then by insertion.
type priorityQueue struct {
	pq.PriorityQueue[arg.ID]
	key map[arg.ID][2]int
	seq int
	of  func(arg.ID) int
}

func newPriorityQueue(of func(arg.ID) int) *priorityQueue {
	q := &priorityQueue{key: make(map[arg.ID][2]int), of: of}
	q.PriorityQueue = pq.Empty(func(a, b arg.ID) bool {
		ka, kb := q.key[a], q.key[b]
		return ka[0] < kb[0] || ka[0] == kb[0] && ka[1] < kb[1]
	})
	return q
}

func (q *priorityQueue) Add(id arg.ID) {
	q.seq++
	q.key[id] = [2]int{q.of(id), q.seq}
	q.PriorityQueue.Add(id)
}

func (q *priorityQueue) GetNext() arg.ID {
	id := q.PriorityQueue.GetNext()
	delete(q.key, id)
	return id
}

func (q *priorityQueue) Filter(keep func(arg.ID) bool) {
	q.PriorityQueue.Filter(func(id arg.ID) bool {
		if keep(id) {
			return true
		}
		delete(q.key, id)
		return false
	})
}

func (q *priorityQueue) Clear() {
	q.PriorityQueue.Clear()
	q.key = make(map[arg.ID][2]int)
}
