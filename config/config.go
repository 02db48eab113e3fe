// Package config holds the options of a verification run. Options are read
// from a YAML file and overridden by command line flags.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/analysis/predicate"
	"github.com/cs-au-dk/reach/analysis/reached"
	"github.com/cs-au-dk/reach/analysis/testtarget"
)

type Refinement struct {
	Sharing                       string `yaml:"sharing"`
	Basis                         string `yaml:"basis"`
	AvoidRootsWithSeveralSiblings bool   `yaml:"avoidRootsWithSeveralSiblings"`
	RestartAfterRefinements       int    `yaml:"restartAfterRefinements"`
	SharePredicates               bool   `yaml:"sharePredicates"`
	DumpPredicates                bool   `yaml:"dumpPredicates"`
	DumpDir                       string `yaml:"dumpDir"`
	DumpFile                      string `yaml:"dumpFile"`
}

type Options struct {
	// Program loading.
	GoPath       string `yaml:"gopath"`
	ModulePath   string `yaml:"modulePath"`
	IncludeTests bool   `yaml:"includeTests"`
	Function     string `yaml:"function"`

	// Translation to automata.
	ErrorFunctions  []string `yaml:"errorFunctions"`
	NondetFunctions []string `yaml:"nondetFunctions"`
	CheckPanics     bool     `yaml:"checkPanics"`
	// Properties to check. Empty checks every property of the automaton.
	Properties []string `yaml:"properties"`

	// Exploration.
	Order                 string `yaml:"order"`
	Seed                  int64  `yaml:"seed"`
	StopAfterTarget       bool   `yaml:"stopAfterTarget"`
	FatalTransferFailures bool   `yaml:"fatalTransferFailures"`
	JoinMerge             bool   `yaml:"joinMerge"`

	// Refinement.
	MaxRefinements           int        `yaml:"maxRefinements"`
	ZeroImprecisionTolerance bool       `yaml:"zeroImprecisionTolerance"`
	Refinement               Refinement `yaml:"refinement"`

	// Test generation.
	Goals   string `yaml:"goals"`
	TestDir string `yaml:"testDir"`
	Passes  int    `yaml:"passes"`

	// Output.
	ARGOut      string `yaml:"argOut"`
	CFAOut      string `yaml:"cfaOut"`
	ImageFormat string `yaml:"imageFormat"`
	Metrics     bool   `yaml:"metrics"`
	NoColorize  bool   `yaml:"noColorize"`
	// Serve is the address of the graph browser started after checking.
	Serve string `yaml:"serve"`
	LogLevel    string `yaml:"logLevel"`

	Parallel int           `yaml:"parallel"`
	Timeout  time.Duration `yaml:"timeout"`
}

func Default() Options {
	ps := predicate.DefaultOptions()
	return Options{
		Function:        "main",
		ErrorFunctions:  []string{"reach_error"},
		NondetFunctions: []string{"nondet"},
		Order:           string(reached.BFS),
		StopAfterTarget: true,
		Refinement: Refinement{
			Sharing:  string(ps.Sharing),
			Basis:    string(ps.Basis),
			DumpDir:  "predicates",
			DumpFile: ps.DumpFile,
		},
		Goals:       string(testtarget.Branches),
		TestDir:     "tests",
		Passes:      1,
		ImageFormat: "dot",
		LogLevel:    logrus.InfoLevel.String(),
		Parallel:    1,
	}
}

// Load reads a YAML configuration on top of the defaults. Keys missing from
// the file keep their default value.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(os.ExpandEnv(path))
	if err != nil {
		return opts, errors.Wrapf(err, "reading configuration %s", path)
	}
	if err := yaml.UnmarshalStrict(data, &opts); err != nil {
		return opts, errors.Wrapf(cpa.ErrInvalidConfiguration, "decoding %s: %v", path, err)
	}
	return opts, nil
}

// BindFlags registers a flag for every option. Flags are initialized from
// opts, so that values loaded before binding act as defaults.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.GoPath, "gopath", o.GoPath, "GOPATH to load the program in GOPATH mode")
	fs.StringVar(&o.ModulePath, "modulepath", o.ModulePath, "module root to load the program in module mode")
	fs.BoolVar(&o.IncludeTests, "include-tests", o.IncludeTests, "also load test packages")
	fs.StringVarP(&o.Function, "fun", "f", o.Function, "function to analyze")

	fs.StringSliceVar(&o.ErrorFunctions, "error-fun", o.ErrorFunctions, "functions whose calls violate a property")
	fs.StringSliceVar(&o.NondetFunctions, "nondet-fun", o.NondetFunctions, "functions returning program inputs")
	fs.BoolVar(&o.CheckPanics, "check-panics", o.CheckPanics, "report reachable panics")
	fs.StringSliceVar(&o.Properties, "property", o.Properties, "properties to check (default all)")

	fs.StringVar(&o.Order, "order", o.Order, "waitlist order: bfs, dfs, random or topological")
	fs.Int64Var(&o.Seed, "seed", o.Seed, "seed of the random waitlist order")
	fs.BoolVar(&o.StopAfterTarget, "stop-after-target", o.StopAfterTarget, "return to refinement as soon as a target is found")
	fs.BoolVar(&o.FatalTransferFailures, "fatal-transfer-failures", o.FatalTransferFailures, "abort on transfer failures")
	fs.BoolVar(&o.JoinMerge, "join", o.JoinMerge, "join predicate states at the same location")

	fs.IntVar(&o.MaxRefinements, "max-refinements", o.MaxRefinements, "bound on refinements (0 is unbounded)")
	fs.BoolVar(&o.ZeroImprecisionTolerance, "zero-imprecision", o.ZeroImprecisionTolerance, "abort on solver failures")
	fs.StringVar(&o.Refinement.Sharing, "sharing", o.Refinement.Sharing, "where new predicates apply: global, scope, function, location or location-instance")
	fs.StringVar(&o.Refinement.Basis, "basis", o.Refinement.Basis, "precision new predicates extend: all, target or cutpoint")
	fs.BoolVar(&o.Refinement.AvoidRootsWithSeveralSiblings, "avoid-sibling-roots", o.Refinement.AvoidRootsWithSeveralSiblings, "move refinement roots with siblings one level up")
	fs.IntVar(&o.Refinement.RestartAfterRefinements, "restart-after", o.Refinement.RestartAfterRefinements, "restart from the root every n refinements (0 never)")
	fs.BoolVar(&o.Refinement.SharePredicates, "share-predicates", o.Refinement.SharePredicates, "add new predicates to every reached state")
	fs.BoolVar(&o.Refinement.DumpPredicates, "dump-predicates", o.Refinement.DumpPredicates, "write the predicates of every refinement")
	fs.StringVar(&o.Refinement.DumpDir, "dump-dir", o.Refinement.DumpDir, "directory of predicate dumps")

	fs.StringVar(&o.Goals, "goals", o.Goals, "test goals: branches or errors")
	fs.StringVar(&o.TestDir, "test-dir", o.TestDir, "directory of generated test cases")
	fs.IntVar(&o.Passes, "passes", o.Passes, "test generation passes")

	fs.StringVar(&o.ARGOut, "arg-out", o.ARGOut, "write the final ARG to this file")
	fs.StringVar(&o.CFAOut, "cfa-out", o.CFAOut, "write the automaton to this file")
	fs.StringVar(&o.ImageFormat, "format", o.ImageFormat, "format of graph output: dot, svg, png or jpg")
	fs.BoolVar(&o.Metrics, "metrics", o.Metrics, "print statistics after every run")
	fs.BoolVar(&o.NoColorize, "no-colorize", o.NoColorize, "disable coloured output")
	fs.StringVar(&o.Serve, "serve", o.Serve, "serve the final graphs over HTTP on this address, e.g. :8080")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level")

	fs.IntVarP(&o.Parallel, "parallel", "j", o.Parallel, "properties checked in parallel")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "time limit of a run (0 is unlimited)")
}

// Merge loads the configuration file into the options bound to fs. Flags
// set on the command line take precedence over the file.
func (o *Options) Merge(path string, fs *pflag.FlagSet) error {
	type setting struct {
		flag  *pflag.Flag
		value string
		slice []string
	}
	var changed []setting
	fs.Visit(func(f *pflag.Flag) {
		s := setting{flag: f, value: f.Value.String()}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			s.slice = sv.GetSlice()
		}
		changed = append(changed, s)
	})

	loaded, err := Load(path)
	if err != nil {
		return err
	}
	*o = loaded
	for _, s := range changed {
		if sv, ok := s.flag.Value.(pflag.SliceValue); ok {
			err = sv.Replace(s.slice)
		} else {
			err = s.flag.Value.Set(s.value)
		}
		if err != nil {
			return errors.Wrapf(err, "restoring --%s", s.flag.Name)
		}
	}
	return nil
}

var imageFormats = map[string]bool{"dot": true, "svg": true, "png": true, "jpg": true}

// Validate checks option values that cannot be checked by type.
func (o Options) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.Wrapf(cpa.ErrInvalidConfiguration, format, args...)
	}
	if _, err := reached.ParseOrder(o.Order); err != nil {
		return err
	}
	if _, err := o.Predicate(); err != nil {
		return err
	}
	if o.Goals != string(testtarget.Branches) && o.Goals != string(testtarget.ErrorCalls) {
		return invalid("unknown goal selection %q", o.Goals)
	}
	if !imageFormats[o.ImageFormat] {
		return invalid("unknown graph format %q", o.ImageFormat)
	}
	if _, err := logrus.ParseLevel(o.LogLevel); err != nil {
		return invalid("%v", err)
	}
	switch {
	case o.Function == "":
		return invalid("no function to analyze")
	case o.MaxRefinements < 0:
		return invalid("negative refinement bound %d", o.MaxRefinements)
	case o.Refinement.RestartAfterRefinements < 0:
		return invalid("negative restart interval %d", o.Refinement.RestartAfterRefinements)
	case o.Passes < 1:
		return invalid("at least one pass is needed, got %d", o.Passes)
	case o.Parallel < 1:
		return invalid("parallelism must be positive, got %d", o.Parallel)
	case o.Timeout < 0:
		return invalid("negative timeout %v", o.Timeout)
	}
	return nil
}

// Predicate converts the refinement options.
func (o Options) Predicate() (predicate.Options, error) {
	r := o.Refinement
	sharing, err := predicate.ParseSharing(r.Sharing)
	if err != nil {
		return predicate.Options{}, err
	}
	basis, err := predicate.ParseBasis(r.Basis)
	if err != nil {
		return predicate.Options{}, err
	}
	return predicate.Options{
		Sharing:                       sharing,
		Basis:                         basis,
		AvoidRootsWithSeveralSiblings: r.AvoidRootsWithSeveralSiblings,
		RestartAfterRefinements:       r.RestartAfterRefinements,
		SharePredicates:               r.SharePredicates,
		DumpPredicates:                r.DumpPredicates,
		DumpDir:                       r.DumpDir,
		DumpFile:                      r.DumpFile,
	}, nil
}

func (o Options) Reached(c *cfa.CFA) reached.Options {
	order, _ := reached.ParseOrder(o.Order)
	res := reached.Options{Order: order, Seed: o.Seed}
	if res.Order == reached.Topological {
		res.Priority = reached.LocationPriority(c)
	}
	return res
}

func (o Options) Translation() cfa.Options {
	return cfa.Options{
		ErrorFunctions:  o.ErrorFunctions,
		NondetFunctions: o.NondetFunctions,
		CheckPanics:     o.CheckPanics,
	}
}

func (o Options) Logger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(o.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	log.SetFormatter(&logrus.TextFormatter{DisableColors: o.NoColorize, FullTimestamp: true})
	return log
}
