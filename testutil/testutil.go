// Package testutil provides fixtures shared by the analysis tests: small
// automata, a toy abstract domain, and loading of Go programs from source.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/pkgutil"
)

// LoadResult contains relevant information obtained after loading a Go program.
type LoadResult struct {
	// MainPkg is the package focused by the analysis.
	MainPkg *packages.Package
	// Prog is the SSA representation of the entire program.
	Prog *ssa.Program
	// Entry is the analysed function.
	Entry *ssa.Function
	// CFA is the automaton of Entry.
	CFA *cfa.CFA
}

// Options used to translate test programs. Programs signal errors by calling
// reach_error and read inputs by calling nondet.
var Options = cfa.Options{
	ErrorFunctions:  []string{"reach_error"},
	NondetFunctions: []string{"nondet"},
}

// LoadSource loads a main package from source and translates its main
// function.
func LoadSource(t *testing.T, src string) LoadResult {
	t.Helper()

	pkgs, err := pkgutil.LoadPackagesFromSource(src)
	require.NoError(t, err, "failed to load program")

	prog, ssaPkgs := pkgutil.BuildSSA(pkgs)
	entry, err := pkgutil.FindFunction(ssaPkgs, "main")
	require.NoError(t, err)

	c, err := cfa.FromSSA(entry, Options)
	require.NoError(t, err)

	return LoadResult{
		MainPkg: pkgs[0],
		Prog:    prog,
		Entry:   entry,
		CFA:     c,
	}
}
