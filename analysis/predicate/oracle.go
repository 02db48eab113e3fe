package predicate

import (
	"context"
	"sort"

	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/refinement"
)

// Oracle decides path feasibility with a SAT solver. The path is encoded in
// static single assignment form, every constraining edge guarded by a
// selector literal. Unsatisfiable paths are explained by the selectors the
// solver blames, and interpolants are read off that core: the interpolant at
// a position is the projection of the core edges before it onto the
// variables they share with the core edges after it. The projection is
// enumerated model by model and kept as a minimised disjunction, so
// relations between variables survive.
type Oracle struct {
	log logrus.FieldLogger
}

var _ refinement.Oracle = (*Oracle)(nil)

func NewOracle(log logrus.FieldLogger) *Oracle {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Oracle{log: log}
}

// version of a variable in the path formula.
type version struct {
	name string
	n    int
}

// pathFormula is the encoding of a path.
type pathFormula struct {
	c        *logic.C
	lits     map[version]z.Lit
	current  map[string]int
	selector map[z.Lit]int
	guardOf  map[int]z.Lit
	guards   []z.Lit
	units    []z.Lit
	// Versions each edge reads and writes.
	refs [][]version
	// Version bound by each havoc edge.
	havocs map[int]version
	exact  bool
}

func (f *pathFormula) lit(v version) z.Lit {
	m, ok := f.lits[v]
	if !ok {
		m = f.c.Lit()
		f.lits[v] = m
	}
	return m
}

func (f *pathFormula) use(i int) func(string) z.Lit {
	return func(name string) z.Lit {
		v := version{name, f.current[name]}
		f.refs[i] = append(f.refs[i], v)
		return f.lit(v)
	}
}

func (f *pathFormula) define(i int, name string) version {
	f.current[name]++
	v := version{name, f.current[name]}
	f.refs[i] = append(f.refs[i], v)
	return v
}

func (f *pathFormula) guard(i int, constraint z.Lit) {
	a := f.c.Lit()
	f.selector[a] = i
	f.guardOf[i] = a
	f.guards = append(f.guards, a)
	f.units = append(f.units, f.c.Or(a.Not(), constraint))
}

func encodePath(path arg.Path) *pathFormula {
	f := &pathFormula{
		c:        logic.NewC(),
		lits:     map[version]z.Lit{},
		current:  map[string]int{},
		selector: map[z.Lit]int{},
		guardOf:  map[int]z.Lit{},
		refs:     make([][]version, len(path.Edges)),
		havocs:   map[int]version{},
		exact:    true,
	}
	for i, e := range path.Edges {
		if e == nil {
			continue
		}
		switch e.Kind {
		case cfa.Assume:
			f.guard(i, encode(f.c, e.Condition(), f.use(i)))
		case cfa.Assign:
			rhs := encode(f.c, e.Expr, f.use(i))
			x := f.lit(f.define(i, e.Var))
			f.guard(i, f.c.Or(f.c.And(x, rhs), f.c.And(x.Not(), rhs.Not())))
		case cfa.Havoc:
			f.havocs[i] = f.define(i, e.Var)
			f.lit(f.havocs[i])
			f.exact = f.exact && e.Exact
		}
	}
	return f
}

// solve runs the solver until it finishes or ctx is done.
func solve(ctx context.Context, g *gini.Gini) (int, error) {
	s := g.GoSolve()
	done := make(chan int, 1)
	go func() { done <- s.Wait() }()
	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		s.Stop()
		<-done
		return 0, ctx.Err()
	}
}

func (o *Oracle) CheckPath(ctx context.Context, path arg.Path) (refinement.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return refinement.Verdict{}, err
	}
	f := encodePath(path)
	g := gini.New()
	f.c.ToCnf(g)
	for _, m := range f.units {
		g.Add(m)
		g.Add(z.LitNull)
	}
	g.Assume(f.guards...)

	res, err := solve(ctx, g)
	if err != nil {
		return refinement.Verdict{}, err
	}

	log := o.log.WithFields(logrus.Fields{"length": path.Len(), "guards": len(f.guards)})
	switch res {
	case satisfiable:
		log.Debug("Path is satisfiable")
		return refinement.Verdict{Feasible: true, Precise: f.exact, Inputs: f.inputs(g, path)}, nil
	case unsatisfiable:
		core := map[int]bool{}
		for _, m := range g.Why(nil) {
			if i, ok := f.selector[m]; ok {
				core[i] = true
			}
		}
		if len(core) == 0 {
			return refinement.Verdict{}, errors.Wrap(refinement.ErrCounterexampleAnalysisFailed, "empty unsatisfiable core")
		}
		log.WithField("core", len(core)).Debug("Path is unsatisfiable")
		itps, err := f.interpolants(ctx, core, len(path.States))
		if err != nil {
			return refinement.Verdict{}, err
		}
		return refinement.Verdict{Interpolants: itps}, nil
	}
	return refinement.Verdict{}, errors.Wrap(refinement.ErrCounterexampleAnalysisFailed, "solver gave no answer")
}

func (f *pathFormula) inputs(g *gini.Gini, path arg.Path) []refinement.Input {
	var res []refinement.Input
	for i, e := range path.Edges {
		v, ok := f.havocs[i]
		if !ok || !e.Exact {
			continue
		}
		res = append(res, refinement.Input{Position: i, Edge: e, Var: v.name, Value: g.Value(f.lit(v))})
	}
	return res
}

// maxModels bounds the models enumerated for one projection.
const maxModels = 256

// interpolants computes one interpolant per path state from the edges in
// the core.
func (f *pathFormula) interpolants(ctx context.Context, core map[int]bool, states int) ([]refinement.Interpolant, error) {
	last := -1
	for i := range core {
		if i > last {
			last = i
		}
	}

	res := make([]refinement.Interpolant, states)
	for k := 1; k < states; k++ {
		if k > last {
			res[k] = refinement.False
			continue
		}
		// Versions referenced by core edges before and after the position.
		before, after := map[version]bool{}, map[version]bool{}
		var prefix []z.Lit
		for i := range core {
			refs := before
			if i >= k {
				refs = after
			} else if a, ok := f.guardOf[i]; ok {
				prefix = append(prefix, a)
			}
			for _, v := range f.refs[i] {
				refs[v] = true
			}
		}

		var shared []version
		for v := range before {
			if after[v] {
				shared = append(shared, v)
			}
		}
		sort.Slice(shared, func(i, j int) bool { return shared[i].name < shared[j].name })

		e, err := f.project(ctx, prefix, shared)
		if err != nil {
			return nil, err
		}
		res[k] = refinement.Interpolant{Formula: e}
	}
	return res, nil
}

// project enumerates the values of the shared versions allowed by the
// guarded edges and returns them as a formula over the variable names.
// Versions shared across a position are the current ones there, so names
// are unique.
func (f *pathFormula) project(ctx context.Context, guards []z.Lit, shared []version) (cfa.Expr, error) {
	g := gini.New()
	f.c.ToCnf(g)
	for _, m := range f.units {
		g.Add(m)
		g.Add(z.LitNull)
	}

	var models []cube
	for {
		g.Assume(guards...)
		res, err := solve(ctx, g)
		if err != nil {
			return nil, err
		}
		if res != satisfiable {
			break
		}
		if len(models) == maxModels {
			return nil, errors.Wrapf(refinement.ErrCounterexampleAnalysisFailed, "more than %d models over %d shared variables", maxModels, len(shared))
		}
		c := make(cube, len(shared))
		for i, v := range shared {
			c[i] = low
			if g.Value(f.lit(v)) {
				c[i] = high
			}
		}
		models = append(models, c)
		if len(shared) == 0 {
			break
		}
		// Block the model.
		for i, v := range shared {
			m := f.lit(v)
			if c[i] == high {
				m = m.Not()
			}
			g.Add(m)
		}
		g.Add(z.LitNull)
	}

	names := make([]string, len(shared))
	for i, v := range shared {
		names[i] = v.name
	}
	return dnf(names, minimise(models)), nil
}
