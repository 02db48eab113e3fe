package predicate

import (
	"sort"
	"strings"

	"github.com/benbjohnson/immutable"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/utils"
)

type predicateSet = *immutable.SortedMap[Predicate, struct{}]

func emptySet() predicateSet {
	return immutable.NewSortedMap[Predicate, struct{}](predicateComparer{})
}

func addAll(s predicateSet, ps []Predicate) predicateSet {
	if s == nil {
		s = emptySet()
	}
	for _, p := range ps {
		s = s.Set(p, struct{}{})
	}
	return s
}

func has(s predicateSet, p Predicate) bool {
	if s == nil {
		return false
	}
	_, ok := s.Get(p)
	return ok
}

func items(s predicateSet) []Predicate {
	if s == nil {
		return nil
	}
	res := make([]Predicate, 0, s.Len())
	for itr := s.Iterator(); !itr.Done(); {
		p, _, _ := itr.Next()
		res = append(res, p)
	}
	return res
}

// missing counts the predicates of s that are not in o.
func missing(s, o predicateSet) (n int) {
	for _, p := range items(s) {
		if !has(o, p) {
			n++
		}
	}
	return
}

// Precision assigns predicates to program locations at four granularities:
// everywhere, per function, per location and per location instance. It is
// persistent: every update returns a new precision sharing structure with
// the old one.
type Precision struct {
	global    predicateSet
	functions *immutable.SortedMap[string, predicateSet]
	locations *immutable.Map[*cfa.Node, predicateSet]
	instances *immutable.Map[LocationInstance, predicateSet]
}

func Empty() *Precision {
	return &Precision{
		global:    emptySet(),
		functions: immutable.NewSortedMap[string, predicateSet](utils.OrderedComparer[string]{}),
		locations: immutable.NewMap[*cfa.Node, predicateSet](nodeHasher{}),
		instances: immutable.NewMap[LocationInstance, predicateSet](utils.HashableHasher[LocationInstance]()),
	}
}

func (p *Precision) copy() *Precision {
	cp := *p
	return &cp
}

func (p *Precision) AddGlobalPredicates(ps ...Predicate) *Precision {
	res := p.copy()
	res.global = addAll(p.global, ps)
	return res
}

func (p *Precision) AddFunctionPredicates(fn string, ps ...Predicate) *Precision {
	res := p.copy()
	old, _ := p.functions.Get(fn)
	res.functions = p.functions.Set(fn, addAll(old, ps))
	return res
}

func (p *Precision) AddLocalPredicates(node *cfa.Node, ps ...Predicate) *Precision {
	res := p.copy()
	old, _ := p.locations.Get(node)
	res.locations = p.locations.Set(node, addAll(old, ps))
	return res
}

func (p *Precision) AddLocationInstancePredicates(li LocationInstance, ps ...Predicate) *Precision {
	res := p.copy()
	old, _ := p.instances.Get(li)
	res.instances = p.instances.Set(li, addAll(old, ps))
	return res
}

// Predicates returns the predicates that apply at the given instance of a
// location, sorted.
func (p *Precision) Predicates(node *cfa.Node, instance int) []Predicate {
	s := p.global
	if fs, ok := p.functions.Get(node.Function); ok {
		s = addAll(s, items(fs))
	}
	if ls, ok := p.locations.Get(node); ok {
		s = addAll(s, items(ls))
	}
	if is, ok := p.instances.Get(LocationInstance{node, instance}); ok {
		s = addAll(s, items(is))
	}
	return items(s)
}

// Contains reports whether pred applies at the location instance.
func (p *Precision) Contains(li LocationInstance, pred Predicate) bool {
	if has(p.global, pred) {
		return true
	}
	if fs, ok := p.functions.Get(li.Function()); ok && has(fs, pred) {
		return true
	}
	if ls, ok := p.locations.Get(li.Node); ok && has(ls, pred) {
		return true
	}
	is, ok := p.instances.Get(li)
	return ok && has(is, pred)
}

// Join merges the predicates of both precisions.
func (p *Precision) Join(o *Precision) *Precision {
	if o == nil || o == p {
		return p
	}
	res := p.AddGlobalPredicates(items(o.global)...)
	for itr := o.functions.Iterator(); !itr.Done(); {
		fn, s, _ := itr.Next()
		res = res.AddFunctionPredicates(fn, items(s)...)
	}
	for itr := o.locations.Iterator(); !itr.Done(); {
		n, s, _ := itr.Next()
		res = res.AddLocalPredicates(n, items(s)...)
	}
	for itr := o.instances.Iterator(); !itr.Done(); {
		li, s, _ := itr.Next()
		res = res.AddLocationInstancePredicates(li, items(s)...)
	}
	return res
}

// UnionOf joins all precisions. The union of nothing is empty.
func UnionOf(ps ...*Precision) *Precision {
	res := Empty()
	for _, p := range ps {
		res = res.Join(p)
	}
	return res
}

// DifferenceTo counts the predicates of p that o lacks, in the same
// category and for the same key. It is zero iff o extends p.
func (p *Precision) DifferenceTo(o *Precision) int {
	n := missing(p.global, o.global)
	for itr := p.functions.Iterator(); !itr.Done(); {
		fn, s, _ := itr.Next()
		os, _ := o.functions.Get(fn)
		n += missing(s, os)
	}
	for itr := p.locations.Iterator(); !itr.Done(); {
		node, s, _ := itr.Next()
		os, _ := o.locations.Get(node)
		n += missing(s, os)
	}
	for itr := p.instances.Iterator(); !itr.Done(); {
		li, s, _ := itr.Next()
		os, _ := o.instances.Get(li)
		n += missing(s, os)
	}
	return n
}

// Size is the number of predicate entries over all categories.
func (p *Precision) Size() int {
	return p.DifferenceTo(Empty())
}

// Entry lists the predicates of one key of a precision category.
type Entry struct {
	Scope      string   `yaml:"scope"`
	Key        string   `yaml:"key,omitempty"`
	Predicates []string `yaml:"predicates"`
}

func entry(scope, key string, ps []Predicate) Entry {
	strs := make([]string, len(ps))
	for i, p := range ps {
		strs[i] = p.String()
	}
	return Entry{Scope: scope, Key: key, Predicates: strs}
}

// Entries lists the precision in a stable order: global predicates, then
// functions, locations and location instances.
func (p *Precision) Entries() []Entry {
	var res []Entry
	if p.global.Len() > 0 {
		res = append(res, entry("global", "", items(p.global)))
	}
	for itr := p.functions.Iterator(); !itr.Done(); {
		fn, s, _ := itr.Next()
		res = append(res, entry("function", fn, items(s)))
	}

	var locs []Entry
	for itr := p.locations.Iterator(); !itr.Done(); {
		n, s, _ := itr.Next()
		locs = append(locs, entry("location", n.Function+":"+n.String(), items(s)))
	}
	for itr := p.instances.Iterator(); !itr.Done(); {
		li, s, _ := itr.Next()
		locs = append(locs, entry("instance", li.Function()+":"+li.String(), items(s)))
	}
	sort.SliceStable(locs, func(i, j int) bool {
		if locs[i].Scope != locs[j].Scope {
			return locs[i].Scope == "location"
		}
		return locs[i].Key < locs[j].Key
	})
	return append(res, locs...)
}

func (p *Precision) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, e := range p.Entries() {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(e.Scope)
		if e.Key != "" {
			sb.WriteString(" " + e.Key)
		}
		sb.WriteString(": " + strings.Join(e.Predicates, ", "))
	}
	sb.WriteString("}")
	return sb.String()
}
