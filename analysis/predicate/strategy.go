package predicate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/analysis/refinement"
	"github.com/cs-au-dk/reach/utils"
	"github.com/cs-au-dk/reach/utils/hmap"
)

// Sharing decides where new predicates apply.
type Sharing string

const (
	ShareGlobal           Sharing = "global"
	ShareScope            Sharing = "scope"
	ShareFunction         Sharing = "function"
	ShareLocation         Sharing = "location"
	ShareLocationInstance Sharing = "location-instance"
)

// Basis decides which precision new predicates are added to.
type Basis string

const (
	// BasisAll unites the precisions of the pruned subtree.
	BasisAll Basis = "all"
	// BasisTarget takes the precision of the target state.
	BasisTarget Basis = "target"
	// BasisCutpoint takes the precision of the refinement root.
	BasisCutpoint Basis = "cutpoint"
)

var (
	Sharings = []Sharing{ShareGlobal, ShareScope, ShareFunction, ShareLocation, ShareLocationInstance}
	Bases    = []Basis{BasisAll, BasisTarget, BasisCutpoint}
)

func ParseSharing(s string) (Sharing, error) {
	for _, sh := range Sharings {
		if strings.EqualFold(s, string(sh)) {
			return sh, nil
		}
	}
	return "", errors.Wrapf(cpa.ErrInvalidConfiguration, "unknown predicate sharing %q", s)
}

func ParseBasis(s string) (Basis, error) {
	for _, b := range Bases {
		if strings.EqualFold(s, string(b)) {
			return b, nil
		}
	}
	return "", errors.Wrapf(cpa.ErrInvalidConfiguration, "unknown predicate basis %q", s)
}

type Options struct {
	Sharing Sharing
	Basis   Basis
	// Move the refinement root up when its parent has other children.
	AvoidRootsWithSeveralSiblings bool
	// Restart the exploration from the root after this many refinements.
	// Zero never restarts.
	RestartAfterRefinements int
	// Add the new predicates to the precision of every reached state.
	SharePredicates bool
	// Write the predicates of every refinement to DumpDir.
	DumpPredicates bool
	DumpDir        string
	// DumpFile is a format string for the refinement number.
	DumpFile string
}

func DefaultOptions() Options {
	return Options{
		Sharing:  ShareLocation,
		Basis:    BasisTarget,
		DumpFile: "refinement%04d-predicates.yaml",
	}
}

// RefinementStrategy adds the predicates of the interpolants along an
// infeasible path to the precision and prunes the graph below the
// refinement root.
type RefinementStrategy struct {
	Options

	log         logrus.FieldLogger
	refinements int
	updates     int
}

var _ refinement.Strategy = (*RefinementStrategy)(nil)

func NewRefinementStrategy(opts Options, log logrus.FieldLogger) (*RefinementStrategy, error) {
	if _, err := ParseSharing(string(opts.Sharing)); err != nil {
		return nil, err
	}
	if _, err := ParseBasis(string(opts.Basis)); err != nil {
		return nil, err
	}
	if opts.RestartAfterRefinements < 0 {
		return nil, errors.Wrapf(cpa.ErrInvalidConfiguration, "negative restart interval %d", opts.RestartAfterRefinements)
	}
	if opts.DumpPredicates && !strings.Contains(opts.DumpFile, "%") {
		return nil, errors.Wrapf(cpa.ErrInvalidConfiguration, "predicate dump file %q has no refinement number", opts.DumpFile)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RefinementStrategy{Options: opts, log: log}, nil
}

// PathRefinement accumulates the predicates found along one path.
type PathRefinement struct {
	rs   *reached.ARGReachedSet
	path arg.Path
	// Insertion ordered, so that the result does not depend on hashing.
	newPredicates *hmap.LinkedMultiMap[LocationInstance, Predicate]
	affected      []arg.ID
}

// NewPredicates lists the predicates found so far, grouped by location
// instance in the order the instances were met.
func (b *PathRefinement) NewPredicates() *hmap.LinkedMultiMap[LocationInstance, Predicate] {
	return b.newPredicates
}

// Affected lists the path states that received predicates.
func (b *PathRefinement) Affected() []arg.ID { return b.affected }

func (s *RefinementStrategy) PerformRefinement(ctx context.Context, rs *reached.ARGReachedSet, path arg.Path, itps []refinement.Interpolant, repeated bool) error {
	if len(itps) != len(path.States) {
		return &refinement.FailedError{
			Reason: refinement.InterpolationFailed,
			Path:   path,
			Err:    errors.Errorf("%d interpolants for a path of %d states", len(itps), len(path.States)),
		}
	}

	b := s.StartRefinementOfPath(rs, path)
	unreachable := arg.None
	for i, id := range path.States {
		if err := ctx.Err(); err != nil {
			return err
		}
		if itps[i].IsTrue() {
			continue
		}
		if itps[i].IsFalse() {
			unreachable = id
			break
		}
		if err := s.PerformRefinementForState(b, itps[i], id); err != nil {
			return err
		}
	}
	if unreachable == arg.None {
		return &refinement.FailedError{
			Reason: refinement.InterpolationFailed,
			Path:   path,
			Err:    errors.New("no interpolant along the path is false"),
		}
	}
	return s.FinishRefinementOfPath(b, unreachable, repeated)
}

func (s *RefinementStrategy) StartRefinementOfPath(rs *reached.ARGReachedSet, path arg.Path) *PathRefinement {
	return &PathRefinement{
		rs:            rs,
		path:          path,
		newPredicates: hmap.NewLinkedMultiMap[Predicate](utils.HashableHasher[LocationInstance]()),
	}
}

func (b *PathRefinement) instanceOf(id arg.ID) (LocationInstance, error) {
	st, ok := stateOf(b.rs.ARG.State(id))
	if !ok {
		return LocationInstance{}, cpa.InvariantViolation("state %d has no predicate component", id)
	}
	return st.LocationInstance(), nil
}

// PerformRefinementForState records the predicates of the interpolant at
// the location instance of the path state. The graph is left untouched.
func (s *RefinementStrategy) PerformRefinementForState(b *PathRefinement, itp refinement.Interpolant, point arg.ID) error {
	li, err := b.instanceOf(point)
	if err != nil {
		return err
	}
	b.newPredicates.Put(li, FromInterpolant(itp)...)
	b.affected = append(b.affected, point)
	return nil
}

// FinishRefinementOfPath adds false at the unreachable state, computes the
// new precision and prunes the graph below the refinement root.
func (s *RefinementStrategy) FinishRefinementOfPath(b *PathRefinement, unreachable arg.ID, repeated bool) error {
	rs := b.rs
	li, err := b.instanceOf(unreachable)
	if err != nil {
		return err
	}
	b.newPredicates.Put(li, FalsePredicate)
	b.affected = append(b.affected, unreachable)

	targetPrec, err := s.precisionAt(rs, b.path.Last())
	if err != nil {
		return err
	}
	root, err := s.refinementRoot(b, targetPrec, repeated)
	if err != nil {
		return err
	}

	s.refinements++
	if s.RestartAfterRefinements > 0 && s.refinements >= s.RestartAfterRefinements {
		s.log.WithField("refinements", s.refinements).Debug("Restarting exploration from the root")
		root = rs.ARG.Root()
		s.refinements = 0
	}

	base, err := s.basePrecision(rs, root, targetPrec)
	if err != nil {
		return err
	}
	newPrec := s.share(base, b.newPredicates)

	if d := base.DifferenceTo(newPrec); d != 0 {
		return cpa.InvariantViolation("refinement forgot %d predicates of the base precision", d)
	}
	// A cutpoint basis deliberately drops the predicates of the pruned part.
	if s.Basis != BasisCutpoint {
		if d := targetPrec.DifferenceTo(newPrec); d != 0 {
			return cpa.InvariantViolation("refinement forgot %d predicates of the target precision", d)
		}
	}
	s.updates++

	log := s.log.WithFields(logrus.Fields{"root": root, "refinement": s.updates, "predicates": newPrec.Size()})
	if traceEnabled(s.log) {
		log.Trace(spew.Sdump(newPrec.Entries()))
	}
	if s.DumpPredicates {
		if err := s.dump(b.newPredicates); err != nil {
			log.WithError(err).Warn("Could not dump predicates")
		}
	}

	rootPrec, err := rs.Precision(root)
	if err != nil {
		return err
	}
	if parents := rs.ARG.Node(root).Parents(); len(parents) > 0 {
		if siblings := len(rs.ARG.Node(parents[0]).Children()) - 1; siblings > 0 {
			log.WithField("siblings", siblings).Debug("Refinement root has siblings")
		}
	}
	if err := rs.RemoveSubtree(root, withPrecision(rootPrec, newPrec)); err != nil {
		return err
	}

	if s.SharePredicates {
		if err := rs.UpdatePrecisionGlobally(func(_ arg.ID, p cpa.Precision) cpa.Precision {
			if old, ok := precisionOf(p); ok {
				return withPrecision(p, old.Join(newPrec))
			}
			return p
		}); err != nil {
			return err
		}
	}
	log.Debug("Refined precision")
	return nil
}

func (s *RefinementStrategy) precisionAt(rs *reached.ARGReachedSet, id arg.ID) (*Precision, error) {
	p, err := rs.Precision(id)
	if err != nil {
		return nil, err
	}
	pp, ok := precisionOf(p)
	if !ok {
		return nil, cpa.InvariantViolation("precision of state %d has no predicate component", id)
	}
	return pp, nil
}

// refinementRoot is the first affected state. Without new predicates it is
// the highest ancestor at the same location instead, so that a larger part
// of the graph is explored again.
func (s *RefinementStrategy) refinementRoot(b *PathRefinement, targetPrec *Precision, repeated bool) (arg.ID, error) {
	rs := b.rs
	found := false
	b.newPredicates.ForEach(func(li LocationInstance, ps []Predicate) {
		for _, p := range ps {
			found = found || !targetPrec.Contains(li, p)
		}
	})

	root := b.affected[0]
	if !found {
		if repeated {
			return arg.None, &refinement.FailedError{Reason: refinement.RepeatedCounterexample, Path: b.path}
		}
		loc, _ := cpa.Location(rs.ARG.State(root))
		for cur := root; ; {
			parents := rs.ARG.Node(cur).Parents()
			if len(parents) == 0 {
				break
			}
			cur = parents[0]
			if l, ok := cpa.Location(rs.ARG.State(cur)); ok && l == loc {
				root = cur
			}
		}
		s.log.WithField("root", root).Debug("No new predicates, moving refinement root up")
	}

	if s.AvoidRootsWithSeveralSiblings {
		if parents := rs.ARG.Node(root).Parents(); len(parents) > 0 && len(rs.ARG.Node(parents[0]).Children()) > 1 {
			root = parents[0]
		}
	}
	return root, nil
}

func (s *RefinementStrategy) basePrecision(rs *reached.ARGReachedSet, root arg.ID, targetPrec *Precision) (*Precision, error) {
	switch s.Basis {
	case BasisAll:
		var precs []*Precision
		for _, id := range rs.ARG.Subtree(root) {
			if !rs.Contains(id) {
				continue
			}
			p, err := s.precisionAt(rs, id)
			if err != nil {
				return nil, err
			}
			precs = append(precs, p)
		}
		return UnionOf(precs...), nil
	case BasisCutpoint:
		return s.precisionAt(rs, root)
	}
	return targetPrec, nil
}

// share adds the new predicates to base according to the sharing policy.
func (s *RefinementStrategy) share(base *Precision, preds *hmap.LinkedMultiMap[LocationInstance, Predicate]) *Precision {
	res := base
	preds.ForEach(func(li LocationInstance, ps []Predicate) {
		switch s.Sharing {
		case ShareGlobal:
			res = res.AddGlobalPredicates(ps...)
		case ShareScope:
			var global, local []Predicate
			for _, p := range ps {
				if p.Scoped() {
					local = append(local, p)
				} else {
					global = append(global, p)
				}
			}
			res = res.AddGlobalPredicates(global...).AddLocalPredicates(li.Node, local...)
		case ShareFunction:
			res = res.AddFunctionPredicates(li.Function(), ps...)
		case ShareLocationInstance:
			res = res.AddLocationInstancePredicates(li, ps...)
		default:
			res = res.AddLocalPredicates(li.Node, ps...)
		}
	})
	return res
}

// dumpEntry is the serialised form of the predicates found at one location
// instance.
type dumpEntry struct {
	Function   string   `yaml:"function"`
	Location   string   `yaml:"location"`
	Instance   int      `yaml:"instance"`
	Predicates []string `yaml:"predicates"`
}

func (s *RefinementStrategy) dump(preds *hmap.LinkedMultiMap[LocationInstance, Predicate]) error {
	var entries []dumpEntry
	preds.ForEach(func(li LocationInstance, ps []Predicate) {
		e := dumpEntry{Function: li.Function(), Location: li.Node.String(), Instance: li.Instance}
		for _, p := range ps {
			e.Predicates = append(e.Predicates, p.String())
		}
		entries = append(entries, e)
	})

	out, err := yaml.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "encoding predicates")
	}
	if s.DumpDir != "" {
		if err := os.MkdirAll(s.DumpDir, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", s.DumpDir)
		}
	}
	name := filepath.Join(s.DumpDir, fmt.Sprintf(s.DumpFile, s.updates))
	return errors.Wrapf(os.WriteFile(name, out, 0o644), "writing %s", name)
}

func traceEnabled(log logrus.FieldLogger) bool {
	switch l := log.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.TraceLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.TraceLevel)
	}
	return false
}
