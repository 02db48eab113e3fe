package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cs-au-dk/reach/analysis/algorithm"
	"github.com/cs-au-dk/reach/analysis/arg"
	"github.com/cs-au-dk/reach/config"
	"github.com/cs-au-dk/reach/utils"
	"github.com/cs-au-dk/reach/vistool"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// settings are shared by all commands.
type settings struct {
	opts config.Options
	log  *logrus.Logger
}

func newRootCmd() *cobra.Command {
	s := &settings{opts: config.Default()}

	var cfgPath string
	cmd := &cobra.Command{
		Use:          "reach",
		Short:        "Reachability checking of boolean Go programs with predicate abstraction",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath != "" {
				if err := s.opts.Merge(cfgPath, cmd.Flags()); err != nil {
					return err
				}
			}
			if err := s.opts.Validate(); err != nil {
				return err
			}
			utils.SetColorize(!s.opts.NoColorize)
			s.log = s.opts.Logger()
			s.log.WithField("config", cfgPath).Debug("Options ready")
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML configuration file")
	s.opts.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(s.checkCmd(), s.testgenCmd(), s.cfaCmd())
	return cmd
}

func (s *settings) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [package]",
		Short: "Check that no error location of the function is reachable",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := load(s.opts, target(args), s.log)
			if err != nil {
				return err
			}
			if err := p.writeCFA(); err != nil {
				return err
			}
			props, err := p.properties()
			if err != nil {
				return err
			}
			if len(props) == 0 {
				s.log.Warn("The function has no error locations")
			}

			runs := make([]*run, len(props))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(s.opts.Parallel)
			for i, prop := range props {
				i, prop := i, prop
				g.Go(func() error {
					r, err := p.check(ctx, prop)
					runs[i] = r
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			proved := true
			graphs := make(map[string]*arg.ARG, len(runs))
			for _, r := range runs {
				if err := p.report(out, r); err != nil {
					return err
				}
				proved = proved && r.result.Outcome == algorithm.True
				graphs[string(r.property)] = r.rs.ARG
			}
			if s.opts.Serve != "" {
				if err := vistool.Serve(cmd.Context(), s.opts.Serve, vistool.Handler(graphs), s.log); err != nil {
					return err
				}
			}
			if !proved {
				return errNotProved
			}
			return nil
		},
	}
}

func (s *settings) testgenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "testgen [package]",
		Short: "Generate inputs covering the branches of the function",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := load(s.opts, target(args), s.log)
			if err != nil {
				return err
			}
			r, w, err := p.testgen(cmd.Context())
			if err != nil {
				return err
			}
			return p.reportTests(cmd.OutOrStdout(), r, w)
		},
	}
}

func (s *settings) cfaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cfa [package]",
		Short: "Print the control-flow automaton of the function",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := load(s.opts, target(args), s.log)
			if err != nil {
				return err
			}
			if p.opts.Metrics {
				p.cfaMetrics(cmd.OutOrStdout())
			}
			if p.opts.CFAOut != "" {
				return p.writeCFA()
			}
			return p.cfa.ToDot().WriteDot(cmd.OutOrStdout())
		},
	}
}

// target is the package to load: the first argument, or the current
// directory.
func target(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
