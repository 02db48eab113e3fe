package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cs-au-dk/reach/analysis/algorithm"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/analysis/location"
	"github.com/cs-au-dk/reach/analysis/predicate"
	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/analysis/refinement"
	"github.com/cs-au-dk/reach/analysis/stats"
	"github.com/cs-au-dk/reach/analysis/testtarget"
	"github.com/cs-au-dk/reach/config"
	"github.com/cs-au-dk/reach/pkgutil"
)

// pipeline is a wrapper around the analysis pipeline of one function.
type pipeline struct {
	opts config.Options
	cfa  *cfa.CFA
	log  logrus.FieldLogger
}

// load builds the automaton of the configured function in the package at
// path.
func load(opts config.Options, path string, log logrus.FieldLogger) (*pipeline, error) {
	log.WithField("package", path).Info("Loading packages")
	pkgs, err := pkgutil.LoadPackages(pkgutil.LoadConfig{
		GoPath:       opts.GoPath,
		ModulePath:   opts.ModulePath,
		IncludeTests: opts.IncludeTests,
	}, path)
	if err != nil {
		return nil, errors.Wrap(err, "loading packages")
	}

	_, ssaPkgs := pkgutil.BuildSSA(pkgs)
	fn, err := pkgutil.FindFunction(ssaPkgs, opts.Function)
	if err != nil {
		return nil, err
	}
	c, err := cfa.FromSSA(fn, opts.Translation())
	if err != nil {
		return nil, errors.Wrapf(err, "translating %s", fn)
	}
	log.WithFields(logrus.Fields{
		"function":   fn.String(),
		"locations":  len(c.Nodes),
		"edges":      len(c.Edges),
		"properties": len(c.Properties()),
	}).Info("Built automaton")
	return &pipeline{opts: opts, cfa: c, log: log}, nil
}

// properties lists the properties to check: the configured ones, or all the
// automaton can violate.
func (p *pipeline) properties() ([]cfa.Property, error) {
	all := p.cfa.Properties()
	if len(p.opts.Properties) == 0 {
		return all, nil
	}
	known := make(map[cfa.Property]bool, len(all))
	for _, prop := range all {
		known[prop] = true
	}
	var res []cfa.Property
	for _, name := range p.opts.Properties {
		prop := cfa.Property(name)
		if !known[prop] {
			return nil, errors.Wrapf(cpa.ErrInvalidConfiguration, "%s cannot violate %q", p.cfa.Function, name)
		}
		res = append(res, prop)
	}
	return res, nil
}

func (p *pipeline) reachedSet() (*reached.ARGReachedSet, error) {
	return reached.NewARGReachedSet(p.opts.Reached(p.cfa), p.log)
}

func (p *pipeline) cpaOptions() algorithm.Options {
	return algorithm.Options{
		StopAfterTarget:       p.opts.StopAfterTarget,
		FatalTransferFailures: p.opts.FatalTransferFailures,
	}
}

// run is the outcome of checking one property.
type run struct {
	property cfa.Property
	result   algorithm.Result
	rs       *reached.ARGReachedSet
	stats    *stats.Stats
}

// check verifies one property with predicate abstraction and refinement.
func (p *pipeline) check(ctx context.Context, prop cfa.Property) (*run, error) {
	log := p.log.WithField("property", prop)
	prec, err := p.opts.Predicate()
	if err != nil {
		return nil, err
	}
	strategy, err := predicate.NewRefinementStrategy(prec, log)
	if err != nil {
		return nil, err
	}

	a := cpa.NewComposite(location.CPA{Property: prop}, predicate.CPA{JoinMerge: p.opts.JoinMerge})
	rs, err := p.reachedSet()
	if err != nil {
		return nil, err
	}
	if _, err := algorithm.Initialize(a, rs, p.cfa.Entry); err != nil {
		return nil, err
	}

	st := stats.New(string(prop))
	cegar := algorithm.NewCEGARAlgorithm(
		algorithm.NewCPAAlgorithm(a, p.cpaOptions(), st, log),
		refinement.NewRefiner(predicate.NewOracle(log), strategy, st, log),
		p.opts.MaxRefinements, st, log)

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	status, err := cegar.Run(ctx, rs)
	if errors.Is(err, cpa.ErrInvariantViolation) {
		return nil, err
	}
	res := algorithm.Evaluate(rs, status, cegar.Counterexample(), err)
	log.WithFields(logrus.Fields{
		"outcome":     res.Outcome,
		"refinements": cegar.Refinements(),
	}).Info("Finished")
	return &run{property: prop, result: res, rs: rs, stats: st}, nil
}

// testgen writes a test case for every coverable goal.
func (p *pipeline) testgen(ctx context.Context) (*run, *testtarget.Writer, error) {
	goals, err := testtarget.Select(p.cfa, testtarget.Selection(p.opts.Goals))
	if err != nil {
		return nil, nil, err
	}
	writer, err := testtarget.NewWriter(p.opts.TestDir, p.log)
	if err != nil {
		return nil, nil, err
	}

	a := cpa.NewComposite(
		location.CPA{IgnoreErrors: true},
		&testtarget.CPA{Goals: goals},
		predicate.CPA{JoinMerge: p.opts.JoinMerge},
	)
	rs, err := p.reachedSet()
	if err != nil {
		return nil, nil, err
	}
	if _, err := algorithm.Initialize(a, rs, p.cfa.Entry); err != nil {
		return nil, nil, err
	}

	prec, err := p.opts.Predicate()
	if err != nil {
		return nil, nil, err
	}
	strategy, err := predicate.NewRefinementStrategy(prec, p.log)
	if err != nil {
		return nil, nil, err
	}

	// Spurious paths to a goal are refined away before the goal is checked.
	st := stats.New("testgen")
	cegar := algorithm.NewCEGARAlgorithm(
		algorithm.NewCPAAlgorithm(a, algorithm.Options{StopAfterTarget: true, FatalTransferFailures: p.opts.FatalTransferFailures}, st, p.log),
		refinement.NewRefiner(predicate.NewOracle(p.log), strategy, st, p.log),
		p.opts.MaxRefinements, st, p.log)
	gen := algorithm.NewTestGenAlgorithm(cegar, goals, predicate.NewOracle(p.log), writer, st, p.log)
	gen.ZeroImprecisionTolerance = p.opts.ZeroImprecisionTolerance
	passes := algorithm.NewRestartAlgorithm(gen, p.opts.Passes, st, p.log)
	passes.AfterPass = func(pass int, rs *reached.ARGReachedSet) error {
		p.log.WithFields(logrus.Fields{"pass": pass + 1, "goals": goals.Len(), "tests": writer.Count()}).Info("Pass finished")
		return nil
	}

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	status, err := passes.Run(ctx, rs)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, nil, err
	}
	res := algorithm.Evaluate(rs, status, nil, err)
	return &run{property: "testgen", result: res, rs: rs, stats: st}, writer, nil
}
