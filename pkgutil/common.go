package pkgutil

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// BuildSSA constructs the SSA program of the loaded packages.
func BuildSSA(pkgs []*packages.Package) (*ssa.Program, []*ssa.Package) {
	prog, ssaPkgs := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	prog.Build()
	return prog, ssaPkgs
}

// GetMain determines what is the main package as follows:
// 1. Take the package with the most members
// 2. Skip the package suffixed with .test
func GetMain(mains []*ssa.Package) (main *ssa.Package) {
	for _, mp := range mains {
		if mp == nil || strings.HasSuffix(mp.String(), ".test") {
			continue
		}
		if main == nil || len(main.Members) < len(mp.Members) {
			main = mp
		}
	}
	return
}

// FindFunction looks up a package level function by name, first in the main
// package and then in every other package, in path order.
func FindFunction(pkgs []*ssa.Package, name string) (*ssa.Function, error) {
	if main := GetMain(pkgs); main != nil {
		if fn := main.Func(name); fn != nil {
			return fn, nil
		}
	}

	sorted := make([]*ssa.Package, 0, len(pkgs))
	for _, pkg := range pkgs {
		if pkg != nil {
			sorted = append(sorted, pkg)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Pkg.Path() < sorted[j].Pkg.Path()
	})
	for _, pkg := range sorted {
		if fn := pkg.Func(name); fn != nil {
			return fn, nil
		}
	}

	return nil, errors.Errorf("function %q not found", name)
}
