package hmap

import "github.com/benbjohnson/immutable"

// A simple implementation of a mutable hash map.
// Useful when we cannot use Go's maps directly, and we want to avoid the
// overhead of using immutable maps.

// Uses linked lists to resolve hash collisions.

type node[K, V any] struct {
	key   K
	value V
	next  *node[K, V]
}

type Map[K, V any] struct {
	hasher immutable.Hasher[K]
	mp     map[uint32]*node[K, V]
	size   int
}

// Order of V and K are swapped since K can be inferred by the argument.
func NewMap[V, K any](hasher immutable.Hasher[K]) *Map[K, V] {
	return &Map[K, V]{
		hasher: hasher,
		mp:     make(map[uint32]*node[K, V]),
	}
}

func (m *Map[K, V]) Set(key K, value V) {
	h := m.hasher.Hash(key)
	if snode, found := m.mp[h]; !found {
		m.mp[h] = &node[K, V]{key, value, nil}
		m.size++
	} else {
		for {
			if m.hasher.Equal(key, snode.key) {
				snode.value = value
				return
			}

			if next := snode.next; next == nil {
				// Hash collision :(
				snode.next = &node[K, V]{key, value, nil}
				m.size++
				return
			} else {
				snode = next
			}
		}
	}
}

func (m *Map[K, V]) GetOk(key K) (res V, ok bool) {
	for node := m.mp[m.hasher.Hash(key)]; node != nil; node = node.next {
		if m.hasher.Equal(key, node.key) {
			return node.value, true
		}
	}

	return
}

func (m *Map[K, V]) Get(key K) V {
	v, _ := m.GetOk(key)
	return v
}

func (m *Map[K, V]) Len() int {
	return m.size
}

// LinkedMultiMap associates every key with a list of values.
// Keys are iterated in the order they were first inserted, and the values of
// a key in the order they were added.
type LinkedMultiMap[K, V any] struct {
	index *Map[K, int]
	keys  []K
	vals  [][]V
}

func NewLinkedMultiMap[V, K any](hasher immutable.Hasher[K]) *LinkedMultiMap[K, V] {
	return &LinkedMultiMap[K, V]{index: NewMap[int](hasher)}
}

// Put appends the values to the list of key. A key without values is still
// recorded.
func (m *LinkedMultiMap[K, V]) Put(key K, values ...V) {
	i, ok := m.index.GetOk(key)
	if !ok {
		i = len(m.keys)
		m.index.Set(key, i)
		m.keys = append(m.keys, key)
		m.vals = append(m.vals, nil)
	}
	m.vals[i] = append(m.vals[i], values...)
}

func (m *LinkedMultiMap[K, V]) Get(key K) []V {
	if i, ok := m.index.GetOk(key); ok {
		return m.vals[i]
	}
	return nil
}

func (m *LinkedMultiMap[K, V]) ContainsKey(key K) bool {
	_, ok := m.index.GetOk(key)
	return ok
}

// Keys returns the keys in insertion order.
func (m *LinkedMultiMap[K, V]) Keys() []K {
	return append([]K(nil), m.keys...)
}

// Values returns all values, grouped by key in insertion order.
func (m *LinkedMultiMap[K, V]) Values() (res []V) {
	for _, vs := range m.vals {
		res = append(res, vs...)
	}
	return
}

// ForEach calls do for every key and its values in insertion order.
func (m *LinkedMultiMap[K, V]) ForEach(do func(K, []V)) {
	for i, k := range m.keys {
		do(k, m.vals[i])
	}
}

func (m *LinkedMultiMap[K, V]) IsEmpty() bool {
	return len(m.keys) == 0
}
