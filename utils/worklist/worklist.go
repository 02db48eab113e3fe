package worklist

import "math/rand"

// Worklist is a FIFO queue of pending elements.
type Worklist[T any] struct {
	list []T
}

// Start worklist execution with provided `starting` element and an iteration
// function. The iteration function exposes the next element and a function with
// which to add more elements to the worklist.
func Start[T any](start T, do func(next T, add func(el T))) {
	StartV([]T{start}, do)
}

// Start worklist execution with a preloaded queue and an iteration
// function. The iteration function exposes the next element and a function with
// which to add more elements to the worklist.
func StartV[T any](start []T, do func(next T, add func(el T))) {
	W := Empty[T]()
	for _, e := range start {
		W.Add(e)
	}

	W.Process(do)
}

func Empty[T any]() Worklist[T] {
	return Worklist[T]{}
}

func (w *Worklist[T]) GetNext() (ret T) {
	if len(w.list) == 0 {
		return
	}
	next := w.list[0]
	w.list = w.list[1:]
	return next
}

func (w *Worklist[T]) IsEmpty() bool {
	return len(w.list) == 0
}

func (w *Worklist[T]) Len() int {
	return len(w.list)
}

func (w *Worklist[T]) Process(
	do func(
		next T,
		add func(element T))) {
	for !w.IsEmpty() {
		do(w.GetNext(), w.Add)
	}
}

func (w *Worklist[T]) Add(el T) {
	w.list = append(w.list, el)
}

// Elements returns the pending elements in the order they will be returned.
func (w *Worklist[T]) Elements() []T {
	return append([]T(nil), w.list...)
}

// Filter retains only the pending elements satisfying keep.
func (w *Worklist[T]) Filter(keep func(T) bool) {
	w.list = filter(w.list, keep)
}

// Clear drops every pending element.
func (w *Worklist[T]) Clear() {
	w.list = nil
}

// Stack is a LIFO worklist.
type Stack[T any] struct {
	list []T
}

func EmptyStack[T any]() Stack[T] {
	return Stack[T]{}
}

func (s *Stack[T]) Add(el T) {
	s.list = append(s.list, el)
}

func (s *Stack[T]) GetNext() (ret T) {
	n := len(s.list)
	if n == 0 {
		return
	}
	ret = s.list[n-1]
	s.list = s.list[:n-1]
	return
}

func (s *Stack[T]) IsEmpty() bool            { return len(s.list) == 0 }
func (s *Stack[T]) Len() int                 { return len(s.list) }
func (s *Stack[T]) Clear()                   { s.list = nil }
func (s *Stack[T]) Filter(keep func(T) bool) { s.list = filter(s.list, keep) }

// Elements returns the pending elements, the next one to be returned first.
func (s *Stack[T]) Elements() []T {
	res := make([]T, 0, len(s.list))
	for i := len(s.list) - 1; i >= 0; i-- {
		res = append(res, s.list[i])
	}
	return res
}

// Random is a worklist that returns a pseudo-random pending element.
// The sequence of returned elements is fixed by the seed.
type Random[T any] struct {
	list []T
	rnd  *rand.Rand
}

func EmptyRandom[T any](seed int64) Random[T] {
	return Random[T]{rnd: rand.New(rand.NewSource(seed))}
}

func (r *Random[T]) Add(el T) {
	r.list = append(r.list, el)
}

func (r *Random[T]) GetNext() (ret T) {
	n := len(r.list)
	if n == 0 {
		return
	}
	i := r.rnd.Intn(n)
	ret = r.list[i]
	// Preserve the relative order of the remaining elements.
	r.list = append(r.list[:i], r.list[i+1:]...)
	return
}

func (r *Random[T]) IsEmpty() bool            { return len(r.list) == 0 }
func (r *Random[T]) Len() int                 { return len(r.list) }
func (r *Random[T]) Clear()                   { r.list = nil }
func (r *Random[T]) Filter(keep func(T) bool) { r.list = filter(r.list, keep) }
func (r *Random[T]) Elements() []T            { return append([]T(nil), r.list...) }

func filter[T any](list []T, keep func(T) bool) []T {
	res := list[:0]
	for _, el := range list {
		if keep(el) {
			res = append(res, el)
		}
	}
	// Zero the tail so that dropped elements can be collected.
	var zero T
	for i := len(res); i < len(list); i++ {
		list[i] = zero
	}
	return res
}
