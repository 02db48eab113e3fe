package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/cs-au-dk/reach/analysis/algorithm"
	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/cpa"
	"github.com/cs-au-dk/reach/config"
)

func quiet() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func loadExample(t *testing.T, opts config.Options, name string) *pipeline {
	t.Helper()
	opts.GoPath = "examples"
	p, err := load(opts, name, quiet())
	require.NoError(t, err)
	return p
}

func TestCheckExamples(t *testing.T) {
	for name, expected := range map[string]algorithm.Outcome{
		"toggle": algorithm.False,
		"lock":   algorithm.True,
	} {
		name, expected := name, expected
		t.Run(name, func(t *testing.T) {
			opts := config.Default()
			opts.MaxRefinements = 20
			p := loadExample(t, opts, name)

			props, err := p.properties()
			require.NoError(t, err)
			require.Equal(t, []cfa.Property{"reach_error"}, props)

			r, err := p.check(context.Background(), props[0])
			require.NoError(t, err)
			require.Equal(t, expected, r.result.Outcome, r.result.Reason)
			if expected == algorithm.False {
				require.NotNil(t, r.result.Counterexample)
				require.NotEmpty(t, r.result.Counterexample.Inputs)
			}
		})
	}
}

func TestUnknownProperty(t *testing.T) {
	opts := config.Default()
	opts.Properties = []string{"abort"}
	p := loadExample(t, opts, "toggle")

	_, err := p.properties()
	require.ErrorIs(t, err, cpa.ErrInvalidConfiguration)
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	argOut := filepath.Join(dir, "arg.dot")

	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{
		"check", "--gopath", "examples", "--no-colorize", "--log-level", "error",
		"--arg-out", argOut, "toggle",
	})

	err := cmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, errNotProved)
	require.Contains(t, out.String(), "reach_error: FALSE")
	require.Contains(t, out.String(), "Counterexample:")

	data, err := os.ReadFile(argOut)
	require.NoError(t, err)
	require.Contains(t, string(data), "digraph")
}

func TestCFACommand(t *testing.T) {
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"cfa", "--gopath", "examples", "--no-colorize", "--log-level", "error", "--metrics", "lock"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "Outgoing degree of locations")
	require.Contains(t, out.String(), "digraph")
}

func TestTestgenCommand(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"testgen", "--gopath", "examples", "--no-colorize", "--log-level", "error", "--test-dir", dir, "toggle"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestTarget(t *testing.T) {
	require.Equal(t, ".", target(nil))
	require.Equal(t, "lock", target([]string{"lock"}))
}
